package normalize

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.uber.org/multierr"

	"github.com/sourceplane/svcstack/internal/construct"
	"github.com/sourceplane/svcstack/internal/model"
)

// Defaults for values that do not identify an account, zone or domain
const (
	DefaultCIDR               = "10.0.0.0/16"
	DefaultMaxAZs             = 2
	DefaultListenerPort       = 50051
	DefaultContainerName      = "web"
	DefaultCPU                = 256
	DefaultMemory             = 512
	DefaultLogRetentionDays   = 30
	DefaultMinCapacity        = 2
	DefaultMaxCapacity        = 10
	DefaultTargetCPUPercent   = 50
	DefaultCooldown           = 60 * time.Second
	DefaultCertificateTimeout = 45 * time.Minute
	DefaultBuildTimeout       = 60 * time.Minute
)

// Environment variables overriding the account and region, for CI
const (
	EnvAccount = "SVCSTACK_ACCOUNT"
	EnvRegion  = "SVCSTACK_REGION"
)

var (
	accountPattern = regexp.MustCompile(`^[0-9]{12}$`)
	regionPattern  = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-[0-9]$`)
)

// Normalizer fills defaults and validates an expanded environment
type Normalizer struct {
	getenv func(string) string
}

// NewNormalizer creates a normalizer reading overrides from the process
// environment
func NewNormalizer() *Normalizer {
	return &Normalizer{getenv: os.Getenv}
}

// WithGetenv replaces the environment lookup
func (n *Normalizer) WithGetenv(getenv func(string) string) *Normalizer {
	n.getenv = getenv
	return n
}

// Normalize returns the environment with overrides and defaults applied. All
// validation failures are returned together.
func (n *Normalizer) Normalize(env model.Environment) (model.Environment, error) {
	s := &env.Settings

	if v := n.getenv(EnvAccount); v != "" {
		s.Account = v
	}
	if v := n.getenv(EnvRegion); v != "" {
		s.Region = v
	}

	applyDefaults(s)

	if err := validate(s); err != nil {
		return env, fmt.Errorf("environment %s: %w", env.Name, err)
	}
	return env, nil
}

// NormalizeAll normalizes every environment and aggregates the errors
func (n *Normalizer) NormalizeAll(envs []model.Environment) ([]model.Environment, error) {
	out := make([]model.Environment, 0, len(envs))
	var errs error
	for _, env := range envs {
		normalized, err := n.Normalize(env)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, normalized)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func applyDefaults(s *model.Settings) {
	if s.Zone.Strategy == "" {
		s.Zone.Strategy = model.ZoneStrategyLookup
		if s.Zone.ID != "" {
			s.Zone.Strategy = model.ZoneStrategyStatic
		}
	}

	net := &s.Network
	if net.CIDR == "" {
		net.CIDR = DefaultCIDR
	}
	if net.MaxAZs == 0 {
		net.MaxAZs = DefaultMaxAZs
	}
	if net.NATGateways == nil {
		nat := net.MaxAZs
		net.NATGateways = &nat
	}

	svc := &s.Service
	if s.Registry.Name == "" {
		s.Registry.Name = svc.Name
	}
	if svc.ListenerPort == 0 {
		svc.ListenerPort = DefaultListenerPort
	}
	if svc.ContainerPort == 0 {
		svc.ContainerPort = svc.ListenerPort
	}
	if svc.ContainerName == "" {
		svc.ContainerName = DefaultContainerName
	}
	if svc.CPU == 0 {
		svc.CPU = DefaultCPU
	}
	if svc.Memory == 0 {
		svc.Memory = DefaultMemory
	}
	if svc.LogRetentionDays == 0 {
		svc.LogRetentionDays = DefaultLogRetentionDays
	}
	if svc.CertificateTimeout == 0 {
		svc.CertificateTimeout = DefaultCertificateTimeout
	}
	if svc.HealthCheck.Path == "" {
		svc.HealthCheck.Path = construct.DefaultHealthCheckPath
	}
	if svc.HealthCheck.GRPCCode == "" {
		svc.HealthCheck.GRPCCode = construct.DefaultGRPCSuccessCode
	}

	scaling := &svc.Autoscaling
	if scaling.MinCapacity == 0 {
		scaling.MinCapacity = DefaultMinCapacity
	}
	if scaling.MaxCapacity == 0 {
		scaling.MaxCapacity = DefaultMaxCapacity
		if scaling.MinCapacity > scaling.MaxCapacity {
			scaling.MaxCapacity = scaling.MinCapacity
		}
	}
	if scaling.TargetCPUPercent == 0 {
		scaling.TargetCPUPercent = DefaultTargetCPUPercent
	}
	if scaling.ScaleInCooldown == 0 {
		scaling.ScaleInCooldown = DefaultCooldown
	}
	if scaling.ScaleOutCooldown == 0 {
		scaling.ScaleOutCooldown = DefaultCooldown
	}

	p := &s.Pipeline
	if p.Source.Strategy == "" {
		p.Source.Strategy = model.SourceStrategyConnection
	}
	if p.Build.Image == "" {
		p.Build.Image = construct.DefaultBuildImage
	}
	if p.Build.ComputeType == "" {
		p.Build.ComputeType = construct.DefaultComputeType
	}
	if p.Build.Timeout == 0 {
		p.Build.Timeout = DefaultBuildTimeout
	}
}

func validate(s *model.Settings) error {
	var errs error
	missing := func(field string) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %s", construct.ErrMissingConfig, field))
	}
	invalid := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, fmt.Errorf("%w: "+format, append([]interface{}{construct.ErrInvalidProps}, args...)...))
	}

	switch {
	case s.Account == "":
		missing("account")
	case !accountPattern.MatchString(s.Account):
		invalid("account %q is not a 12 digit AWS account ID", s.Account)
	}
	switch {
	case s.Region == "":
		missing("region")
	case !regionPattern.MatchString(s.Region):
		invalid("region %q is not an AWS region", s.Region)
	}

	if s.Zone.Name == "" {
		missing("zone.name")
	}
	switch s.Zone.Strategy {
	case model.ZoneStrategyStatic:
		if s.Zone.ID == "" {
			missing("zone.id (required by the static strategy)")
		}
	case model.ZoneStrategyLookup:
	default:
		invalid("unknown zone strategy %q", s.Zone.Strategy)
	}

	switch {
	case s.Service.DomainName == "":
		missing("service.domainName")
	case s.Zone.Name != "" && !(construct.HostedZone{Name: s.Zone.Name}).Contains(s.Service.DomainName):
		errs = multierr.Append(errs, fmt.Errorf("%w: %s is not in %s", construct.ErrDomainOutsideZone, s.Service.DomainName, s.Zone.Name))
	}
	if s.Service.Name == "" {
		missing("service.name")
	}

	if s.Registry.RemovalPolicy == "" {
		missing("registry.removalPolicy (retain or destroy)")
	}

	if s.Network.MaxAZs > construct.MaxAZLimit {
		invalid("network.maxAzs %d exceeds the limit of %d", s.Network.MaxAZs, construct.MaxAZLimit)
	}
	if nat := *s.Network.NATGateways; nat < 1 || nat > s.Network.MaxAZs {
		invalid("network.natGateways %d must be between 1 and maxAzs (%d)", nat, s.Network.MaxAZs)
	}

	scaling := s.Service.Autoscaling
	if scaling.MinCapacity > scaling.MaxCapacity {
		invalid("service.autoscaling minCapacity %d exceeds maxCapacity %d", scaling.MinCapacity, scaling.MaxCapacity)
	}
	if scaling.TargetCPUPercent > 100 {
		invalid("service.autoscaling.targetCpuPercent %d exceeds 100", scaling.TargetCPUPercent)
	}

	// the stack creates the repository empty, so nothing is assumed to be in it
	switch img := s.Service.Image; img.Source {
	case "":
		missing("service.image.source (image with a bootstrap reference, or repository with a pushed tag)")
	case model.ImageSourceImage:
		if img.Reference == "" {
			missing("service.image.reference")
		}
	case model.ImageSourceRepository:
		if img.Tag == "" {
			missing("service.image.tag (a tag already pushed to the repository)")
		}
	}

	src := s.Pipeline.Source
	for _, f := range []struct{ name, value string }{
		{"owner", src.Owner},
		{"repo", src.Repo},
		{"branch", src.Branch},
	} {
		if construct.Value(f.value).Empty() {
			missing("pipeline.source." + f.name)
		}
	}
	switch src.Strategy {
	case model.SourceStrategyConnection:
		if src.ConnectionArn == "" {
			missing("pipeline.source.connectionArn")
		}
	case model.SourceStrategyToken:
		if src.TokenSecret == "" {
			missing("pipeline.source.tokenSecret")
		}
	default:
		invalid("unknown pipeline source strategy %q", src.Strategy)
	}

	if construct.Value(s.Pipeline.Notifications.Email).Empty() {
		missing("pipeline.notifications.email")
	}
	slack := s.Pipeline.Notifications.Slack
	if (slack.WorkspaceID == "") != (slack.ChannelID == "") {
		missing("pipeline.notifications.slack needs both workspaceId and channelId")
	}

	build := s.Pipeline.Build
	if (build.SSHPrivateKeySecret == "") != (build.SSHPublicKeySecret == "") {
		missing("pipeline.build needs both sshPrivateKeySecret and sshPublicKeySecret")
	}
	if build.SSHPrivateKeySecret != "" && build.GitURL == "" {
		missing("pipeline.build.gitUrl (required for submodule sync)")
	}

	return errs
}
