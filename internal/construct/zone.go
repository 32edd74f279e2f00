package construct

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/sourceplane/svcstack/internal/model"
)

// HostedZone is a resolved Route 53 public hosted zone
type HostedZone struct {
	Name string
	ID   string
}

// Contains reports whether domain is the zone apex or a name inside the zone
func (z HostedZone) Contains(domain string) bool {
	domain = normalizeDomain(domain)
	zone := normalizeDomain(z.Name)
	return domain == zone || strings.HasSuffix(domain, "."+zone)
}

// ZoneResolver resolves the hosted zone the service's records and
// certificate validation live in. Resolution happens during synthesis, so
// failures surface before anything is deployed.
type ZoneResolver interface {
	Resolve(ctx context.Context) (HostedZone, error)
	Strategy() string
}

// ZoneProvider looks up hosted zones by name
type ZoneProvider interface {
	LookupZone(ctx context.Context, name string, private bool) (HostedZone, error)
}

// StaticZone resolves a zone from known attributes
type StaticZone struct {
	Name string
	ID   string
}

func (z StaticZone) Strategy() string { return model.ZoneStrategyStatic }

func (z StaticZone) Resolve(ctx context.Context) (HostedZone, error) {
	if z.Name == "" || z.ID == "" {
		return HostedZone{}, fmt.Errorf("%w: static zone requires both zone name and zone ID", ErrMissingConfig)
	}
	return HostedZone{Name: normalizeDomain(z.Name), ID: strings.TrimPrefix(z.ID, "/hostedzone/")}, nil
}

// LookupZone resolves a zone by name through a provider
type LookupZone struct {
	Name     string
	Private  bool
	Provider ZoneProvider
}

func (z LookupZone) Strategy() string { return model.ZoneStrategyLookup }

func (z LookupZone) Resolve(ctx context.Context) (HostedZone, error) {
	if z.Name == "" {
		return HostedZone{}, fmt.Errorf("%w: zone lookup requires a zone name", ErrMissingConfig)
	}
	if z.Provider == nil {
		return HostedZone{}, fmt.Errorf("%w: no zone provider configured for lookup of %s", ErrZoneNotFound, z.Name)
	}

	zone, err := z.Provider.LookupZone(ctx, normalizeDomain(z.Name), z.Private)
	if err != nil {
		return HostedZone{}, fmt.Errorf("failed to look up hosted zone %s: %w", z.Name, err)
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("resolved hosted zone", "name", zone.Name, "id", zone.ID)
	return zone, nil
}

// NewZoneResolver selects the resolution strategy from configuration
func NewZoneResolver(settings model.ZoneSettings, provider ZoneProvider) (ZoneResolver, error) {
	switch settings.Strategy {
	case model.ZoneStrategyStatic:
		return StaticZone{Name: settings.Name, ID: settings.ID}, nil
	case model.ZoneStrategyLookup:
		return LookupZone{Name: settings.Name, Private: settings.PrivateZone, Provider: provider}, nil
	default:
		return nil, fmt.Errorf("%w: unknown zone strategy %q", ErrInvalidProps, settings.Strategy)
	}
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSuffix(d, "."))
}
