package construct

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sourceplane/svcstack/internal/buildspec"
	"github.com/sourceplane/svcstack/internal/model"
)

const (
	DefaultBuildImage  = "aws/codebuild/standard:5.0"
	DefaultComputeType = "BUILD_GENERAL1_SMALL"

	SourceArtifact = "SourceArtifact"
	BuildArtifact  = "BuildArtifact"
)

// Stage and action names
const (
	StageSource = "Source"
	StageBuild  = "Build"
	StageDeploy = "Deploy"

	ActionBuild    = "Build"
	ActionApproval = "Approval"
	ActionDeploy   = "Deploy"
)

// Build environment variable types
const (
	EnvPlaintext      = "PLAINTEXT"
	EnvSecretsManager = "SECRETS_MANAGER"
	EnvParameterStore = "PARAMETER_STORE"
)

// PipelineProps configures the build and delivery pipeline
type PipelineProps struct {
	Name      string
	Source    SourceTrigger
	BuildSpec *buildspec.BuildSpec
	// ApprovalEmail receives the manual approval requests
	ApprovalEmail Value

	BuildImage   string
	ComputeType  string
	BuildTimeout time.Duration

	// GitURL, SSHPrivateKeySecret and SSHPublicKeySecret feed submodule
	// syncing in the build. GitURL may be an SSM parameter.
	GitURL              Value
	SSHPrivateKeySecret string
	SSHPublicKeySecret  string

	Notifications NotificationProps
}

// EnvironmentVariable is a build environment variable
type EnvironmentVariable struct {
	Name  string
	Type  string
	Value interface{}
}

// ActionDefinition is one action in a pipeline stage
type ActionDefinition struct {
	Name     string
	Category string
	Provider string
	RunOrder int
}

// StageDefinition is one ordered pipeline stage
type StageDefinition struct {
	Name    string
	Actions []ActionDefinition
}

// PipelineDefinition describes the declared pipeline
type PipelineDefinition struct {
	PipelineID   string
	ProjectID    string
	BucketID     string
	TopicID      string
	BuildRole    *Role
	PipelineRole *Role
	Stages       []StageDefinition
	Artifacts    []string
	Environment  []EnvironmentVariable
}

// Stage returns the named stage
func (p *PipelineDefinition) Stage(name string) (StageDefinition, bool) {
	for _, s := range p.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageDefinition{}, false
}

// Action returns the named action of a stage
func (p *PipelineDefinition) Action(stage, name string) (ActionDefinition, bool) {
	s, ok := p.Stage(stage)
	if !ok {
		return ActionDefinition{}, false
	}
	for _, a := range s.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// NewPipeline declares the artifact bucket, build project, approval topic
// and the Source, Build and Deploy stages. It refuses to run without a
// complete service to deploy to.
func NewPipeline(scope Scope, service *ServiceHandle, props PipelineProps) (*PipelineDefinition, error) {
	if err := service.Validate(); err != nil {
		return nil, err
	}
	if props.Name == "" {
		return nil, fmt.Errorf("%w: pipeline name", ErrMissingConfig)
	}
	if props.Source == nil {
		return nil, fmt.Errorf("%w: pipeline source", ErrMissingConfig)
	}
	if props.BuildSpec == nil {
		return nil, fmt.Errorf("%w: pipeline build spec", ErrMissingConfig)
	}
	if err := props.BuildSpec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProps, err)
	}
	if props.ApprovalEmail.Empty() {
		return nil, fmt.Errorf("%w: approval notification email", ErrMissingConfig)
	}
	if props.BuildImage == "" {
		props.BuildImage = DefaultBuildImage
	}
	if props.ComputeType == "" {
		props.ComputeType = DefaultComputeType
	}

	def := &PipelineDefinition{Artifacts: []string{SourceArtifact, BuildArtifact}}

	var bucket *model.Resource
	def.BucketID, bucket = scope.AddResource("ArtifactsBucket", "AWS::S3::Bucket", map[string]interface{}{
		"BucketEncryption": map[string]interface{}{
			"ServerSideEncryptionConfiguration": []interface{}{
				map[string]interface{}{
					"ServerSideEncryptionByDefault": map[string]interface{}{"SSEAlgorithm": "aws:kms"},
				},
			},
		},
		"PublicAccessBlockConfiguration": map[string]interface{}{
			"BlockPublicAcls":       true,
			"BlockPublicPolicy":     true,
			"IgnorePublicAcls":      true,
			"RestrictPublicBuckets": true,
		},
	})
	bucket.DeletionPolicy = "Retain"
	bucket.UpdateReplacePolicy = "Retain"

	bucketStatement := PolicyStatement{
		Actions: []string{"s3:GetObject*", "s3:GetBucket*", "s3:List*", "s3:DeleteObject*", "s3:PutObject", "s3:Abort*"},
		Resources: []interface{}{
			model.GetAtt(def.BucketID, "Arn"),
			model.Join("", model.GetAtt(def.BucketID, "Arn"), "/*"),
		},
	}

	projectScope := scope.Child("Project")
	def.BuildRole = newRole(projectScope, "Role", "codebuild.amazonaws.com")
	service.Repository.GrantPullPush(def.BuildRole)
	def.BuildRole.AddToPolicy(
		PolicyStatement{
			Actions: []string{"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
			Resources: []interface{}{
				arnSub("logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/" + props.Name + "-build"),
				arnSub("logs:${AWS::Region}:${AWS::AccountId}:log-group:/aws/codebuild/" + props.Name + "-build:*"),
			},
		},
		bucketStatement,
	)

	def.Environment = buildEnvironment(service, props)
	if stmts := secretStatements(def.Environment); len(stmts) > 0 {
		def.BuildRole.AddToPolicy(stmts...)
	}

	spec, err := props.BuildSpec.YAML()
	if err != nil {
		return nil, fmt.Errorf("failed to render build spec: %w", err)
	}

	projectProps := map[string]interface{}{
		"Name":        props.Name + "-build",
		"ServiceRole": def.BuildRole.Arn(),
		"Artifacts":   map[string]interface{}{"Type": "CODEPIPELINE"},
		"Source":      map[string]interface{}{"Type": "CODEPIPELINE", "BuildSpec": spec},
		"Environment": map[string]interface{}{
			"Type":                 "LINUX_CONTAINER",
			"Image":                props.BuildImage,
			"ComputeType":          props.ComputeType,
			"PrivilegedMode":       true,
			"EnvironmentVariables": renderEnvironment(def.Environment),
		},
	}
	if props.BuildTimeout > 0 {
		projectProps["TimeoutInMinutes"] = int(props.BuildTimeout / time.Minute)
	}
	var project *model.Resource
	def.ProjectID, project = scope.AddResource("Project", "AWS::CodeBuild::Project", projectProps)
	project.DependsOn = append(project.DependsOn, def.BuildRole.PolicyID())

	approvalScope := scope.Child("Approval")
	def.TopicID, _ = approvalScope.AddResource("Topic", "AWS::SNS::Topic", map[string]interface{}{
		"DisplayName": props.Name + " deployment approval",
	})
	approvalScope.AddResource("EmailSubscription", "AWS::SNS::Subscription", map[string]interface{}{
		"Protocol": "email",
		"Endpoint": props.ApprovalEmail.resolve(approvalScope, "Email"),
		"TopicArn": model.Ref(def.TopicID),
	})

	pipelineScope := scope.Child("Pipeline")
	def.PipelineRole = newRole(pipelineScope, "Role", "codepipeline.amazonaws.com")
	def.PipelineRole.AddToPolicy(
		bucketStatement,
		PolicyStatement{
			Actions:   []string{"codebuild:BatchGetBuilds", "codebuild:StartBuild", "codebuild:StopBuild"},
			Resources: []interface{}{model.GetAtt(def.ProjectID, "Arn")},
		},
		PolicyStatement{
			Actions: []string{
				"ecs:DescribeServices",
				"ecs:DescribeTaskDefinition",
				"ecs:DescribeTasks",
				"ecs:ListTasks",
				"ecs:RegisterTaskDefinition",
				"ecs:TagResource",
				"ecs:UpdateService",
			},
			Resources: []interface{}{"*"},
		},
		PolicyStatement{
			Actions:   []string{"iam:PassRole"},
			Resources: []interface{}{service.ExecutionRole.Arn(), service.TaskRole.Arn()},
			Conditions: map[string]interface{}{
				"StringEqualsIfExists": map[string]interface{}{"iam:PassedToService": "ecs-tasks.amazonaws.com"},
			},
		},
		PolicyStatement{
			Actions:   []string{"sns:Publish"},
			Resources: []interface{}{model.Ref(def.TopicID)},
		},
	)
	if stmts := props.Source.statements(); len(stmts) > 0 {
		def.PipelineRole.AddToPolicy(stmts...)
	}

	sourceScope := pipelineScope.Child(StageSource)
	stages := []interface{}{
		map[string]interface{}{
			"Name":    StageSource,
			"Actions": []interface{}{props.Source.action(sourceScope, SourceArtifact)},
		},
		map[string]interface{}{
			"Name": StageBuild,
			"Actions": []interface{}{
				map[string]interface{}{
					"Name":         ActionBuild,
					"ActionTypeId": actionType("Build", "CodeBuild"),
					"Configuration": map[string]interface{}{
						"ProjectName":          model.Ref(def.ProjectID),
						"EnvironmentVariables": commitVariables(),
					},
					"InputArtifacts":  []interface{}{map[string]interface{}{"Name": SourceArtifact}},
					"OutputArtifacts": []interface{}{map[string]interface{}{"Name": BuildArtifact}},
					"RunOrder":        1,
				},
			},
		},
		map[string]interface{}{
			"Name": StageDeploy,
			"Actions": []interface{}{
				map[string]interface{}{
					"Name":         ActionApproval,
					"ActionTypeId": actionType("Approval", "Manual"),
					"Configuration": map[string]interface{}{
						"NotificationArn": model.Ref(def.TopicID),
						"CustomData":      fmt.Sprintf("Approve deployment of %s to https://%s", service.ContainerName, service.DomainName),
					},
					"RunOrder": 1,
				},
				map[string]interface{}{
					"Name":         ActionDeploy,
					"ActionTypeId": actionType("Deploy", "ECS"),
					"Configuration": map[string]interface{}{
						"ClusterName": model.Ref(service.ClusterID),
						"ServiceName": service.ServiceName(),
						"FileName":    buildspec.ManifestFile,
					},
					"InputArtifacts": []interface{}{map[string]interface{}{"Name": BuildArtifact}},
					"RunOrder":       2,
				},
			},
		},
	}

	def.Stages = []StageDefinition{
		{Name: StageSource, Actions: []ActionDefinition{{Name: SourceActionName, Category: "Source", Provider: props.Source.Strategy(), RunOrder: 1}}},
		{Name: StageBuild, Actions: []ActionDefinition{{Name: ActionBuild, Category: "Build", Provider: "CodeBuild", RunOrder: 1}}},
		{Name: StageDeploy, Actions: []ActionDefinition{
			{Name: ActionApproval, Category: "Approval", Provider: "Manual", RunOrder: 1},
			{Name: ActionDeploy, Category: "Deploy", Provider: "ECS", RunOrder: 2},
		}},
	}

	var pipeline *model.Resource
	def.PipelineID, pipeline = scope.AddResource("Pipeline", "AWS::CodePipeline::Pipeline", map[string]interface{}{
		"Name":    props.Name,
		"RoleArn": def.PipelineRole.Arn(),
		"ArtifactStore": map[string]interface{}{
			"Type":     "S3",
			"Location": model.Ref(def.BucketID),
		},
		"Stages":                   stages,
		"RestartExecutionOnUpdate": false,
	})
	pipeline.DependsOn = append(pipeline.DependsOn, def.PipelineRole.PolicyID())

	props.Source.attach(sourceScope, def.PipelineID)

	if err := addNotifications(scope.Child("Notifications"), def, props.Name, props.Notifications); err != nil {
		return nil, err
	}

	scope.AddOutput("PipelineArn", "Delivery pipeline ARN", def.Arn())
	scope.AddOutput("PipelineName", "Delivery pipeline name", model.Ref(def.PipelineID))

	return def, nil
}

// Arn returns the pipeline ARN
func (p *PipelineDefinition) Arn() interface{} {
	return arnSub("codepipeline:${AWS::Region}:${AWS::AccountId}:${" + p.PipelineID + "}")
}

func actionType(category, provider string) map[string]interface{} {
	return map[string]interface{}{
		"Category": category,
		"Owner":    "AWS",
		"Provider": provider,
		"Version":  "1",
	}
}

// commitVariables hands the source commit to the build, serialized the way
// the CodeBuild action expects
func commitVariables() string {
	vars, _ := json.Marshal([]map[string]string{{
		"name":  "COMMIT_ID",
		"type":  EnvPlaintext,
		"value": "#{" + SourceNamespace + ".CommitId}",
	}})
	return string(vars)
}

func buildEnvironment(service *ServiceHandle, props PipelineProps) []EnvironmentVariable {
	env := make([]EnvironmentVariable, 0, 7)
	if !props.GitURL.Empty() {
		if props.GitURL.IsParameter() {
			env = append(env, EnvironmentVariable{Name: "GITHUB_URL", Type: EnvParameterStore, Value: props.GitURL.ParameterName()})
		} else {
			env = append(env, EnvironmentVariable{Name: "GITHUB_URL", Type: EnvPlaintext, Value: string(props.GitURL)})
		}
	}
	if props.SSHPrivateKeySecret != "" {
		env = append(env, EnvironmentVariable{Name: "GITHUB_SSH_PRIVATE_KEY", Type: EnvSecretsManager, Value: props.SSHPrivateKeySecret})
	}
	if props.SSHPublicKeySecret != "" {
		env = append(env, EnvironmentVariable{Name: "GITHUB_SSH_PUBLIC_KEY", Type: EnvSecretsManager, Value: props.SSHPublicKeySecret})
	}
	return append(env,
		EnvironmentVariable{Name: "AWS_ACCOUNT_ID", Type: EnvPlaintext, Value: model.Ref(model.AWSAccountID)},
		EnvironmentVariable{Name: "AWS_REGION", Type: EnvPlaintext, Value: model.Ref(model.AWSRegion)},
		EnvironmentVariable{Name: "REPOSITORY_URI", Type: EnvPlaintext, Value: service.Repository.URI()},
		EnvironmentVariable{Name: "CONTAINER_NAME", Type: EnvPlaintext, Value: service.ContainerName},
	)
}

func renderEnvironment(env []EnvironmentVariable) []interface{} {
	out := make([]interface{}, len(env))
	for i, e := range env {
		out[i] = map[string]interface{}{"Name": e.Name, "Type": e.Type, "Value": e.Value}
	}
	return out
}

func secretStatements(env []EnvironmentVariable) []PolicyStatement {
	var secrets, params []interface{}
	for _, e := range env {
		name, _ := e.Value.(string)
		switch e.Type {
		case EnvSecretsManager:
			secrets = append(secrets, arnSub("secretsmanager:${AWS::Region}:${AWS::AccountId}:secret:"+name+"*"))
		case EnvParameterStore:
			params = append(params, arnSub("ssm:${AWS::Region}:${AWS::AccountId}:parameter/"+strings.TrimPrefix(name, "/")))
		}
	}

	var stmts []PolicyStatement
	if len(secrets) > 0 {
		stmts = append(stmts, PolicyStatement{Actions: []string{"secretsmanager:GetSecretValue"}, Resources: secrets})
	}
	if len(params) > 0 {
		stmts = append(stmts, PolicyStatement{Actions: []string{"ssm:GetParameters"}, Resources: params})
	}
	return stmts
}
