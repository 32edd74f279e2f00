package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/go-logr/logr"

	"github.com/sourceplane/svcstack/internal/construct"
)

// Route53API is the part of the Route 53 client used for zone lookups
type Route53API interface {
	ListHostedZonesByName(ctx context.Context, params *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
}

// ZoneProvider resolves hosted zones from the context file, falling back to
// Route 53 when a client is configured. Results are written back to the
// context so later runs synthesize without network access.
type ZoneProvider struct {
	cache   *Context
	client  Route53API
	account string
	region  string
}

// NewZoneProvider creates a provider for one account and region. A nil
// client restricts lookups to the context file.
func NewZoneProvider(cache *Context, client Route53API, account, region string) *ZoneProvider {
	return &ZoneProvider{
		cache:   cache,
		client:  client,
		account: account,
		region:  region,
	}
}

// LoadAWSConfig loads the default credential chain for region
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return cfg, nil
}

// HostedZoneKey is the context key of a hosted zone query
func HostedZoneKey(account, region, name string, private bool) string {
	return fmt.Sprintf("hosted-zone:account=%s:domainName=%s:privateZone=%t:region=%s", account, name, private, region)
}

// LookupZone implements construct.ZoneProvider
func (p *ZoneProvider) LookupZone(ctx context.Context, name string, private bool) (construct.HostedZone, error) {
	log := logr.FromContextOrDiscard(ctx)
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	key := HostedZoneKey(p.account, p.region, name, private)

	var zone construct.HostedZone
	found, err := p.cache.Get(key, &zone)
	if err != nil {
		return construct.HostedZone{}, err
	}
	if found {
		log.V(1).Info("hosted zone from context", "key", key)
		return zone, nil
	}

	if p.client == nil {
		return construct.HostedZone{}, fmt.Errorf("%w: %s is not in the context file, run with --lookups to query Route 53", construct.ErrZoneNotFound, name)
	}

	zone, err = p.query(ctx, name, private)
	if err != nil {
		return construct.HostedZone{}, err
	}
	log.Info("looked up hosted zone", "name", zone.Name, "id", zone.ID)

	if err := p.cache.Set(key, zone); err != nil {
		return construct.HostedZone{}, err
	}
	return zone, nil
}

func (p *ZoneProvider) query(ctx context.Context, name string, private bool) (construct.HostedZone, error) {
	out, err := p.client.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName:  aws.String(name + "."),
		MaxItems: aws.Int32(10),
	})
	if err != nil {
		return construct.HostedZone{}, fmt.Errorf("route53 ListHostedZonesByName %s: %w", name, err)
	}

	// Zones come back in name order starting at DNSName
	for _, hz := range out.HostedZones {
		zoneName := strings.TrimSuffix(aws.ToString(hz.Name), ".")
		if zoneName != name {
			break
		}
		isPrivate := hz.Config != nil && hz.Config.PrivateZone
		if isPrivate != private {
			continue
		}
		return construct.HostedZone{
			Name: zoneName,
			ID:   strings.TrimPrefix(aws.ToString(hz.Id), "/hostedzone/"),
		}, nil
	}

	return construct.HostedZone{}, fmt.Errorf("%w: no %s hosted zone named %s", construct.ErrZoneNotFound, visibility(private), name)
}

func visibility(private bool) string {
	if private {
		return "private"
	}
	return "public"
}
