package model

import "time"

const (
	APIVersion     = "svcstack.sourceplane.io/v1"
	KindStack      = "ServiceStack"
	KindAssembly   = "CloudAssembly"
	DefaultEnvName = "default"
)

// StackConfig is the top-level document describing one service and the
// environments it is deployed to
type StackConfig struct {
	APIVersion   string              `yaml:"apiVersion" json:"apiVersion"`
	Kind         string              `yaml:"kind" json:"kind"`
	Metadata     Metadata            `yaml:"metadata" json:"metadata"`
	Defaults     Settings            `yaml:"defaults" json:"defaults"`
	Environments map[string]Settings `yaml:"environments" json:"environments"`
}

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Settings is the full set of inputs for one synthesized stack. Environment
// entries are overlays on top of the defaults.
type Settings struct {
	Account  string            `yaml:"account,omitempty" json:"account,omitempty"`
	Region   string            `yaml:"region,omitempty" json:"region,omitempty"`
	Zone     ZoneSettings      `yaml:"zone,omitempty" json:"zone,omitempty"`
	Network  NetworkSettings   `yaml:"network,omitempty" json:"network,omitempty"`
	Registry RegistrySettings  `yaml:"registry,omitempty" json:"registry,omitempty"`
	Service  ServiceSettings   `yaml:"service,omitempty" json:"service,omitempty"`
	Pipeline PipelineSettings  `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Tags     map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

const (
	ZoneStrategyStatic = "static"
	ZoneStrategyLookup = "lookup"
)

// ZoneSettings selects how the public hosted zone is resolved
type ZoneSettings struct {
	Strategy    string `yaml:"strategy,omitempty" json:"strategy,omitempty"` // static, lookup
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	ID          string `yaml:"id,omitempty" json:"id,omitempty"`
	PrivateZone bool   `yaml:"privateZone,omitempty" json:"privateZone,omitempty"`
}

type NetworkSettings struct {
	CIDR        string `yaml:"cidr,omitempty" json:"cidr,omitempty"`
	MaxAZs      int    `yaml:"maxAzs,omitempty" json:"maxAzs,omitempty"`
	NATGateways *int   `yaml:"natGateways,omitempty" json:"natGateways,omitempty"`
	// ContainerInsights toggles CloudWatch Container Insights on the cluster
	ContainerInsights *bool `yaml:"containerInsights,omitempty" json:"containerInsights,omitempty"`
}

const (
	RemovalPolicyRetain  = "retain"
	RemovalPolicyDestroy = "destroy"
)

type RegistrySettings struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// RemovalPolicy has no default: retaining leaves orphaned images behind,
	// destroying loses them for good.
	RemovalPolicy string `yaml:"removalPolicy,omitempty" json:"removalPolicy,omitempty"`
	ScanOnPush    *bool  `yaml:"scanOnPush,omitempty" json:"scanOnPush,omitempty"`
	MaxImageCount int    `yaml:"maxImageCount,omitempty" json:"maxImageCount,omitempty"`
}

type ServiceSettings struct {
	Name             string              `yaml:"name,omitempty" json:"name,omitempty"`
	DomainName       string              `yaml:"domainName,omitempty" json:"domainName,omitempty"`
	ListenerPort     int                 `yaml:"listenerPort,omitempty" json:"listenerPort,omitempty"`
	ContainerPort    int                 `yaml:"containerPort,omitempty" json:"containerPort,omitempty"`
	ContainerName    string              `yaml:"containerName,omitempty" json:"containerName,omitempty"`
	CPU              int                 `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Memory           int                 `yaml:"memory,omitempty" json:"memory,omitempty"`
	LogRetentionDays int                 `yaml:"logRetentionDays,omitempty" json:"logRetentionDays,omitempty"`
	Image            ImageSettings       `yaml:"image,omitempty" json:"image,omitempty"`
	Autoscaling      AutoscalingSettings `yaml:"autoscaling,omitempty" json:"autoscaling,omitempty"`
	HealthCheck      HealthCheckSettings `yaml:"healthCheck,omitempty" json:"healthCheck,omitempty"`
	// CertificateTimeout bounds how long the certificate may stay in
	// PENDING_VALIDATION before status reports it as stalled
	CertificateTimeout time.Duration `yaml:"certificateTimeout,omitempty" json:"certificateTimeout,omitempty"`
}

const (
	ImageSourceRepository = "repository"
	ImageSourceImage      = "image"
	ImageSourceAsset      = "asset"
)

type ImageSettings struct {
	Source    string `yaml:"source,omitempty" json:"source,omitempty"` // repository, image, asset
	Tag       string `yaml:"tag,omitempty" json:"tag,omitempty"`
	Reference string `yaml:"reference,omitempty" json:"reference,omitempty"`
	Directory string `yaml:"directory,omitempty" json:"directory,omitempty"`
}

type AutoscalingSettings struct {
	MinCapacity      int           `yaml:"minCapacity,omitempty" json:"minCapacity,omitempty"`
	MaxCapacity      int           `yaml:"maxCapacity,omitempty" json:"maxCapacity,omitempty"`
	TargetCPUPercent int           `yaml:"targetCpuPercent,omitempty" json:"targetCpuPercent,omitempty"`
	ScaleInCooldown  time.Duration `yaml:"scaleInCooldown,omitempty" json:"scaleInCooldown,omitempty"`
	ScaleOutCooldown time.Duration `yaml:"scaleOutCooldown,omitempty" json:"scaleOutCooldown,omitempty"`
}

type HealthCheckSettings struct {
	Path     string        `yaml:"path,omitempty" json:"path,omitempty"`
	GRPCCode string        `yaml:"grpcCode,omitempty" json:"grpcCode,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
}

const (
	SourceStrategyConnection = "connection"
	SourceStrategyToken      = "token"
)

type PipelineSettings struct {
	Source        SourceSettings       `yaml:"source,omitempty" json:"source,omitempty"`
	Build         BuildSettings        `yaml:"build,omitempty" json:"build,omitempty"`
	Notifications NotificationSettings `yaml:"notifications,omitempty" json:"notifications,omitempty"`
}

// SourceSettings configures the pipeline trigger. Owner, Repo and Branch
// accept either a literal or an "ssm:<parameter>" reference.
type SourceSettings struct {
	Strategy      string `yaml:"strategy,omitempty" json:"strategy,omitempty"` // connection, token
	Owner         string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Repo          string `yaml:"repo,omitempty" json:"repo,omitempty"`
	Branch        string `yaml:"branch,omitempty" json:"branch,omitempty"`
	ConnectionArn string `yaml:"connectionArn,omitempty" json:"connectionArn,omitempty"`
	TokenSecret   string `yaml:"tokenSecret,omitempty" json:"tokenSecret,omitempty"`
}

type BuildSettings struct {
	Image               string        `yaml:"image,omitempty" json:"image,omitempty"`
	ComputeType         string        `yaml:"computeType,omitempty" json:"computeType,omitempty"`
	Dockerfile          string        `yaml:"dockerfile,omitempty" json:"dockerfile,omitempty"`
	Context             string        `yaml:"context,omitempty" json:"context,omitempty"`
	GitURL              string        `yaml:"gitUrl,omitempty" json:"gitUrl,omitempty"`
	SSHPrivateKeySecret string        `yaml:"sshPrivateKeySecret,omitempty" json:"sshPrivateKeySecret,omitempty"`
	SSHPublicKeySecret  string        `yaml:"sshPublicKeySecret,omitempty" json:"sshPublicKeySecret,omitempty"`
	InstallCommands     []string      `yaml:"installCommands,omitempty" json:"installCommands,omitempty"`
	Timeout             time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type NotificationSettings struct {
	// Email accepts a literal address or an "ssm:<parameter>" reference
	Email string        `yaml:"email,omitempty" json:"email,omitempty"`
	Slack SlackSettings `yaml:"slack,omitempty" json:"slack,omitempty"`
}

type SlackSettings struct {
	WorkspaceID string `yaml:"workspaceId,omitempty" json:"workspaceId,omitempty"`
	ChannelID   string `yaml:"channelId,omitempty" json:"channelId,omitempty"`
}

// Enabled reports whether a chat channel is configured
func (s SlackSettings) Enabled() bool {
	return s.WorkspaceID != "" && s.ChannelID != ""
}

// Environment is one expanded, normalized stack input
type Environment struct {
	Name      string
	StackName string
	Settings  Settings
}
