package lookup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/svcstack/internal/construct"
)

type fakeRoute53 struct {
	zones []types.HostedZone
	calls int
	err   error
}

func (f *fakeRoute53) ListHostedZonesByName(ctx context.Context, params *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &route53.ListHostedZonesByNameOutput{HostedZones: f.zones}, nil
}

func hostedZone(name, id string, private bool) types.HostedZone {
	return types.HostedZone{
		Name:   aws.String(name),
		Id:     aws.String(id),
		Config: &types.HostedZoneConfig{PrivateZone: private},
	}
}

func TestLookupQueriesAndCaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultContextFile)
	cache, err := LoadContext(path)
	require.NoError(t, err)

	client := &fakeRoute53{zones: []types.HostedZone{
		hostedZone("hypto.co.in.", "/hostedzone/ZPRIVATE", true),
		hostedZone("hypto.co.in.", "/hostedzone/Z30STQ6IYSMMOI", false),
		hostedZone("hypto.com.", "/hostedzone/ZOTHER", false),
	}}
	p := NewZoneProvider(cache, client, "123456789012", "ap-south-1")

	zone, err := p.LookupZone(context.Background(), "Hypto.co.in.", false)
	require.NoError(t, err)
	assert.Equal(t, construct.HostedZone{Name: "hypto.co.in", ID: "Z30STQ6IYSMMOI"}, zone)

	_, err = p.LookupZone(context.Background(), "hypto.co.in", false)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)

	require.NoError(t, cache.Save())
	reloaded, err := LoadContext(path)
	require.NoError(t, err)
	assert.Equal(t, []string{HostedZoneKey("123456789012", "ap-south-1", "hypto.co.in", false)}, reloaded.Keys())

	// a context-only provider answers from the file
	offline := NewZoneProvider(reloaded, nil, "123456789012", "ap-south-1")
	zone, err = offline.LookupZone(context.Background(), "hypto.co.in", false)
	require.NoError(t, err)
	assert.Equal(t, "Z30STQ6IYSMMOI", zone.ID)
}

func TestLookupWithoutClientOrCache(t *testing.T) {
	cache, err := LoadContext(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	_, err = NewZoneProvider(cache, nil, "123456789012", "ap-south-1").LookupZone(context.Background(), "hypto.co.in", false)
	assert.True(t, errors.Is(err, construct.ErrZoneNotFound))
}

func TestLookupNoMatchingZone(t *testing.T) {
	cache, err := LoadContext(filepath.Join(t.TempDir(), DefaultContextFile))
	require.NoError(t, err)

	client := &fakeRoute53{zones: []types.HostedZone{hostedZone("hypto.com.", "/hostedzone/ZOTHER", false)}}
	_, err = NewZoneProvider(cache, client, "123456789012", "ap-south-1").LookupZone(context.Background(), "hypto.co.in", false)
	assert.True(t, errors.Is(err, construct.ErrZoneNotFound))
	assert.Empty(t, cache.Keys())

	client.err = errors.New("throttled")
	_, err = NewZoneProvider(cache, client, "123456789012", "ap-south-1").LookupZone(context.Background(), "hypto.co.in", false)
	assert.ErrorContains(t, err, "throttled")
}

func TestContextSaveOnlyWhenDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctx", DefaultContextFile)
	cache, err := LoadContext(path)
	require.NoError(t, err)

	require.NoError(t, cache.Save())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, cache.Set("k", map[string]string{"a": "b"}))
	require.NoError(t, cache.Save())
	_, err = os.Stat(path)
	require.NoError(t, err)

	cache.Reset("")
	assert.Empty(t, cache.Keys())
}

func TestLoadContextRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultContextFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadContext(path)
	assert.Error(t, err)
}
