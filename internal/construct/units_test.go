package construct

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/svcstack/internal/buildspec"
	"github.com/sourceplane/svcstack/internal/model"
)

type fakeZones map[string]HostedZone

func (f fakeZones) LookupZone(_ context.Context, name string, _ bool) (HostedZone, error) {
	zone, ok := f[name]
	if !ok {
		return HostedZone{}, ErrZoneNotFound
	}
	return zone, nil
}

func TestLogicalIDIsStable(t *testing.T) {
	a := logicalID([]string{"Service", "LB", "Listener"})
	b := logicalID([]string{"Service", "LB", "Listener"})
	assert.Equal(t, a, b)
	assert.Regexp(t, `^ServiceLBListener[0-9A-F]{8}$`, a)

	// sanitizing collapses these paths, the hash keeps them apart
	assert.NotEqual(t, logicalID([]string{"A-B", "C"}), logicalID([]string{"AB", "C"}))
}

func TestDuplicateResourcesFailSynth(t *testing.T) {
	stack := NewStack("test", "123456789012", "eu-west-1", "test")
	stack.Root().AddResource("Topic", "AWS::SNS::Topic", nil)
	stack.Root().AddResource("Topic", "AWS::SNS::Topic", nil)

	_, err := stack.Synth()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate logical ID")
}

func TestZoneResolvers(t *testing.T) {
	ctx := context.Background()

	zone, err := StaticZone{Name: "hypto.co.in.", ID: "/hostedzone/Z30STQ6IYSMMOI"}.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, HostedZone{Name: "hypto.co.in", ID: "Z30STQ6IYSMMOI"}, zone)

	_, err = StaticZone{Name: "hypto.co.in"}.Resolve(ctx)
	assert.True(t, errors.Is(err, ErrMissingConfig))

	_, err = LookupZone{Name: "hypto.co.in"}.Resolve(ctx)
	assert.True(t, errors.Is(err, ErrZoneNotFound))

	provider := fakeZones{"hypto.co.in": {Name: "hypto.co.in", ID: "Z1"}}
	zone, err = LookupZone{Name: "Hypto.co.in", Provider: provider}.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Z1", zone.ID)

	_, err = LookupZone{Name: "example.com", Provider: provider}.Resolve(ctx)
	assert.True(t, errors.Is(err, ErrZoneNotFound))

	_, err = NewZoneResolver(model.ZoneSettings{Strategy: "guess"}, nil)
	assert.True(t, errors.Is(err, ErrInvalidProps))
}

func TestHostedZoneContains(t *testing.T) {
	zone := HostedZone{Name: "hypto.co.in"}

	assert.True(t, zone.Contains("hypto.co.in"))
	assert.True(t, zone.Contains("hws.bar.hypto.co.in."))
	assert.False(t, zone.Contains("nothypto.co.in"))
	assert.False(t, zone.Contains("hypto.co.in.evil.com"))
}

func TestNewClusterValidatesProps(t *testing.T) {
	zone := StaticZone{Name: "hypto.co.in", ID: "Z1"}
	valid := ClusterProps{Name: "svc", CIDR: "10.0.0.0/16", MaxAZs: 2, NATGateways: 1, Zone: zone}

	tests := []struct {
		name   string
		mutate func(*ClusterProps)
		err    error
	}{
		{"too many azs", func(p *ClusterProps) { p.MaxAZs = 4 }, ErrInvalidProps},
		{"no azs", func(p *ClusterProps) { p.MaxAZs = 0 }, ErrInvalidProps},
		{"nat above azs", func(p *ClusterProps) { p.NATGateways = 3 }, ErrInvalidProps},
		{"bad cidr", func(p *ClusterProps) { p.CIDR = "10.0.0.0" }, ErrInvalidProps},
		{"small cidr", func(p *ClusterProps) { p.CIDR = "10.0.0.0/28" }, ErrInvalidProps},
		{"no zone", func(p *ClusterProps) { p.Zone = nil }, ErrMissingConfig},
		{"no name", func(p *ClusterProps) { p.Name = "" }, ErrMissingConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := valid
			tt.mutate(&props)
			stack := NewStack("test", "123456789012", "eu-west-1", "test")
			_, err := NewCluster(context.Background(), stack.Root(), props)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestNewClusterSharesNATGateways(t *testing.T) {
	stack := NewStack("test", "123456789012", "eu-west-1", "test")
	cluster, err := NewCluster(context.Background(), stack.Root(), ClusterProps{
		Name:        "svc",
		CIDR:        "10.1.0.0/16",
		MaxAZs:      3,
		NATGateways: 1,
		Zone:        StaticZone{Name: "hypto.co.in", ID: "Z1"},
	})
	require.NoError(t, err)

	assert.Len(t, cluster.PublicSubnets, 3)
	assert.Len(t, cluster.PrivateSubnets, 3)

	tmpl, err := stack.Synth()
	require.NoError(t, err)
	nats := tmpl.ResourcesOfType("AWS::EC2::NatGateway")
	require.Len(t, nats, 1)

	natRoutes := 0
	for _, id := range tmpl.ResourcesOfType("AWS::EC2::Route") {
		if tmpl.Resources[id].Properties["NatGatewayId"] != nil {
			assert.Equal(t, model.Ref(nats[0]), tmpl.Resources[id].Properties["NatGatewayId"])
			natRoutes++
		}
	}
	assert.Equal(t, 3, natRoutes)
}

func TestNewRegistryRequiresRemovalPolicy(t *testing.T) {
	stack := NewStack("test", "123456789012", "eu-west-1", "test")

	_, err := NewRegistry(stack.Root(), RegistryProps{RepositoryName: "svc"})
	assert.True(t, errors.Is(err, ErrMissingConfig))

	_, err = NewRegistry(stack.Root(), RegistryProps{RepositoryName: "svc", RemovalPolicy: "keep"})
	assert.True(t, errors.Is(err, ErrInvalidProps))

	repo, err := NewRegistry(stack.Root(), RegistryProps{RepositoryName: "svc", RemovalPolicy: model.RemovalPolicyDestroy, MaxImageCount: 20})
	require.NoError(t, err)
	res, ok := stack.Resource(repo.LogicalID)
	require.True(t, ok)
	assert.Equal(t, "Delete", res.DeletionPolicy)
	assert.Contains(t, res.Properties["LifecyclePolicy"].(map[string]interface{})["LifecyclePolicyText"], `"countNumber":20`)
}

func TestNewImageSource(t *testing.T) {
	repo := &RepositoryRef{LogicalID: "Repo", Name: "svc"}

	_, err := NewImageSource(model.ImageSettings{Source: model.ImageSourceRepository}, repo)
	assert.True(t, errors.Is(err, ErrMissingConfig))

	img, err := NewImageSource(model.ImageSettings{Source: model.ImageSourceRepository, Tag: "abc1234"}, repo)
	require.NoError(t, err)
	assert.Equal(t, "svc:abc1234", img.String())
	assert.Equal(t, model.Join("", repo.URI(), ":abc1234"), img.ImageURI())

	_, err = NewImageSource(model.ImageSettings{Source: model.ImageSourceImage, Reference: "Not A Ref"}, repo)
	assert.True(t, errors.Is(err, ErrInvalidImage))

	_, err = NewImageSource(model.ImageSettings{Source: model.ImageSourceAsset, Directory: "."}, repo)
	assert.True(t, errors.Is(err, ErrUnsupportedImageSource))
}

func TestValue(t *testing.T) {
	assert.True(t, Value("ssm:/a/b").IsParameter())
	assert.Equal(t, "/a/b", Value("ssm:/a/b").ParameterName())
	assert.Equal(t, "", Value("main").ParameterName())
	assert.True(t, Value("ssm:").Empty())
	assert.False(t, Value("main").Empty())
}

func TestNewSourceTrigger(t *testing.T) {
	repo := model.SourceSettings{Owner: "hwslabs", Repo: "bar", Branch: "main"}

	connection := repo
	connection.ConnectionArn = "arn:aws:codestar-connections:eu-west-1:123456789012:connection/x"
	trigger, err := NewSourceTrigger(connection)
	require.NoError(t, err)
	assert.Equal(t, model.SourceStrategyConnection, trigger.Strategy())

	_, err = NewSourceTrigger(repo)
	assert.True(t, errors.Is(err, ErrMissingConfig))

	token := repo
	token.Strategy = model.SourceStrategyToken
	_, err = NewSourceTrigger(token)
	assert.True(t, errors.Is(err, ErrMissingConfig))

	token.TokenSecret = "github-token"
	trigger, err = NewSourceTrigger(token)
	require.NoError(t, err)
	assert.Equal(t, model.SourceStrategyToken, trigger.Strategy())

	noBranch := connection
	noBranch.Branch = ""
	trigger, err = NewSourceTrigger(noBranch)
	assert.Nil(t, trigger)
	assert.True(t, errors.Is(err, ErrMissingConfig))
}

func TestNewPipelineRejectsIncompleteService(t *testing.T) {
	spec, err := buildspec.NewRenderer().Render(buildspec.Options{})
	require.NoError(t, err)
	source, err := NewConnectionSource(RepositorySource{Owner: "o", Repo: "r", Branch: "b"}, "arn:x")
	require.NoError(t, err)
	props := PipelineProps{Name: "svc", Source: source, BuildSpec: spec, ApprovalEmail: "ops@example.com"}

	complete := &ServiceHandle{
		ServiceID:     "Service",
		ClusterID:     "Cluster",
		ContainerName: "web",
		Repository:    &RepositoryRef{LogicalID: "Repo", Name: "svc"},
		ExecutionRole: &Role{LogicalID: "Exec"},
		TaskRole:      &Role{LogicalID: "Task"},
	}

	tests := []struct {
		name    string
		service func() *ServiceHandle
	}{
		{"nil", func() *ServiceHandle { return nil }},
		{"no service", func() *ServiceHandle { h := *complete; h.ServiceID = ""; return &h }},
		{"no cluster", func() *ServiceHandle { h := *complete; h.ClusterID = ""; return &h }},
		{"no container", func() *ServiceHandle { h := *complete; h.ContainerName = ""; return &h }},
		{"no repository", func() *ServiceHandle { h := *complete; h.Repository = nil; return &h }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := NewStack("test", "123456789012", "eu-west-1", "test")
			def, err := NewPipeline(stack.Root(), tt.service(), props)
			assert.Nil(t, def)
			assert.True(t, errors.Is(err, ErrIncompleteServiceHandle), "got %v", err)
			assert.Empty(t, stack.template.Resources)
		})
	}
}

func TestNewServiceValidatesAutoscaling(t *testing.T) {
	tests := []struct {
		name string
		a    AutoscalingProps
	}{
		{"zero min", AutoscalingProps{MinCapacity: 0, MaxCapacity: 2, TargetCPUPercent: 50}},
		{"max below min", AutoscalingProps{MinCapacity: 3, MaxCapacity: 2, TargetCPUPercent: 50}},
		{"target above 100", AutoscalingProps{MinCapacity: 1, MaxCapacity: 2, TargetCPUPercent: 120}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.a.validate(), ErrInvalidProps))
		})
	}
	assert.NoError(t, AutoscalingProps{MinCapacity: 2, MaxCapacity: 10, TargetCPUPercent: 50}.validate())
}

func TestSecretStatements(t *testing.T) {
	stmts := secretStatements([]EnvironmentVariable{
		{Name: "GITHUB_URL", Type: EnvParameterStore, Value: "/code-pipeline/builder/github/url"},
		{Name: "SSH_KEY", Type: EnvSecretsManager, Value: "code-pipeline/builder/github/ssh-private-key"},
		{Name: "AWS_REGION", Type: EnvPlaintext, Value: "ap-south-1"},
	})
	require.Len(t, stmts, 2)

	assert.Equal(t, []string{"secretsmanager:GetSecretValue"}, stmts[0].Actions)
	assert.Equal(t, []interface{}{
		model.Sub("arn:${AWS::Partition}:secretsmanager:${AWS::Region}:${AWS::AccountId}:secret:code-pipeline/builder/github/ssh-private-key*"),
	}, stmts[0].Resources)

	assert.Equal(t, []string{"ssm:GetParameters"}, stmts[1].Actions)
	assert.Equal(t, []interface{}{
		model.Sub("arn:${AWS::Partition}:ssm:${AWS::Region}:${AWS::AccountId}:parameter/code-pipeline/builder/github/url"),
	}, stmts[1].Resources)

	assert.Empty(t, secretStatements([]EnvironmentVariable{{Name: "A", Type: EnvPlaintext, Value: "b"}}))
}
