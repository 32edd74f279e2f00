package construct

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sourceplane/svcstack/internal/buildspec"
	"github.com/sourceplane/svcstack/internal/model"
)

// Unit scope names
const (
	UnitRegistry = "Registry"
	UnitCluster  = "Cluster"
	UnitService  = "Service"
	UnitPipeline = "Pipeline"
)

// Units lists the units in construction order
var Units = []string{UnitRegistry, UnitCluster, UnitService, UnitPipeline}

// Result is one synthesized environment
type Result struct {
	Environment model.Environment
	Stack       *Stack
	Template    *model.Template
	BuildSpec   *buildspec.BuildSpec
	Repository  *RepositoryRef
	Cluster     *NetworkCluster
	Service     *ServiceHandle
	Pipeline    *PipelineDefinition
}

// Synthesizer composes the units of an environment into a stack
type Synthesizer struct {
	zones    ZoneProvider
	renderer *buildspec.Renderer
}

// NewSynthesizer creates a synthesizer. zones may be nil when no environment
// uses zone lookups.
func NewSynthesizer(zones ZoneProvider) *Synthesizer {
	return &Synthesizer{
		zones:    zones,
		renderer: buildspec.NewRenderer(),
	}
}

// Synthesize builds Registry, Cluster, Service and Pipeline for a normalized
// environment and returns the validated template
func (s *Synthesizer) Synthesize(ctx context.Context, env model.Environment) (*Result, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("environment", env.Name, "stack", env.StackName)
	cfg := env.Settings

	stack := NewStack(env.StackName, cfg.Account, cfg.Region,
		fmt.Sprintf("%s service stack (%s)", cfg.Service.Name, env.Name))
	stack.Tags = cfg.Tags
	root := stack.Root()
	res := &Result{Environment: env, Stack: stack}

	var err error
	res.Repository, err = NewRegistry(root.Child(UnitRegistry), RegistryProps{
		RepositoryName: cfg.Registry.Name,
		RemovalPolicy:  cfg.Registry.RemovalPolicy,
		ScanOnPush:     boolValue(cfg.Registry.ScanOnPush),
		MaxImageCount:  cfg.Registry.MaxImageCount,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	log.V(1).Info("declared unit", "unit", UnitRegistry)

	zone, err := NewZoneResolver(cfg.Zone, s.zones)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	res.Cluster, err = NewCluster(ctx, root.Child(UnitCluster), ClusterProps{
		Name:              cfg.Service.Name,
		CIDR:              cfg.Network.CIDR,
		MaxAZs:            cfg.Network.MaxAZs,
		NATGateways:       intValue(cfg.Network.NATGateways),
		ContainerInsights: boolValue(cfg.Network.ContainerInsights),
		Zone:              zone,
	})
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	log.V(1).Info("declared unit", "unit", UnitCluster, "zone", res.Cluster.Zone.Name)

	image, err := NewImageSource(cfg.Service.Image, res.Repository)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	res.Service, err = NewService(root.Child(UnitService), res.Cluster, res.Repository, ServiceProps{
		Name:             cfg.Service.Name,
		DomainName:       cfg.Service.DomainName,
		ListenerPort:     cfg.Service.ListenerPort,
		ContainerPort:    cfg.Service.ContainerPort,
		ContainerName:    cfg.Service.ContainerName,
		CPU:              cfg.Service.CPU,
		Memory:           cfg.Service.Memory,
		LogRetentionDays: cfg.Service.LogRetentionDays,
		Image:            image,
		Autoscaling: AutoscalingProps{
			MinCapacity:      cfg.Service.Autoscaling.MinCapacity,
			MaxCapacity:      cfg.Service.Autoscaling.MaxCapacity,
			TargetCPUPercent: cfg.Service.Autoscaling.TargetCPUPercent,
			ScaleInCooldown:  cfg.Service.Autoscaling.ScaleInCooldown,
			ScaleOutCooldown: cfg.Service.Autoscaling.ScaleOutCooldown,
		},
		HealthCheckPath: cfg.Service.HealthCheck.Path,
		GRPCSuccessCode: cfg.Service.HealthCheck.GRPCCode,
		HealthInterval:  cfg.Service.HealthCheck.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	log.V(1).Info("declared unit", "unit", UnitService, "image", image.String())

	build := cfg.Pipeline.Build
	res.BuildSpec, err = s.renderer.Render(buildspec.Options{
		Dockerfile:      build.Dockerfile,
		Context:         build.Context,
		InstallCommands: build.InstallCommands,
		SyncSubmodules:  build.GitURL != "" && build.SSHPrivateKeySecret != "" && build.SSHPublicKeySecret != "",
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	source, err := NewSourceTrigger(cfg.Pipeline.Source)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	res.Pipeline, err = NewPipeline(root.Child(UnitPipeline), res.Service, PipelineProps{
		Name:                cfg.Service.Name,
		Source:              source,
		BuildSpec:           res.BuildSpec,
		ApprovalEmail:       Value(cfg.Pipeline.Notifications.Email),
		BuildImage:          build.Image,
		ComputeType:         build.ComputeType,
		BuildTimeout:        build.Timeout,
		GitURL:              Value(build.GitURL),
		SSHPrivateKeySecret: build.SSHPrivateKeySecret,
		SSHPublicKeySecret:  build.SSHPublicKeySecret,
		Notifications: NotificationProps{
			SlackWorkspaceID: cfg.Pipeline.Notifications.Slack.WorkspaceID,
			SlackChannelID:   cfg.Pipeline.Notifications.Slack.ChannelID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	log.V(1).Info("declared unit", "unit", UnitPipeline, "source", source.Strategy())

	res.Template, err = stack.Synth()
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize %s: %w", env.StackName, err)
	}

	log.Info("synthesized stack", "resources", len(res.Template.Resources), "outputs", len(res.Template.Outputs))
	return res, nil
}

func boolValue(b *bool) bool {
	return b != nil && *b
}

func intValue(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
