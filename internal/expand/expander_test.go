package expand

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/svcstack/internal/model"
)

func testConfig() *model.StackConfig {
	one := 1
	on, off := true, false
	return &model.StackConfig{
		APIVersion: model.APIVersion,
		Kind:       model.KindStack,
		Metadata:   model.Metadata{Name: "bar-service"},
		Defaults: model.Settings{
			Account: "123456789012",
			Region:  "ap-south-1",
			Network: model.NetworkSettings{MaxAZs: 2, ContainerInsights: &on},
			Service: model.ServiceSettings{
				DomainName:  "hws.bar.hypto.co.in",
				Autoscaling: model.AutoscalingSettings{MinCapacity: 2, MaxCapacity: 10, ScaleInCooldown: time.Minute},
			},
			Tags: map[string]string{"team": "platform"},
		},
		Environments: map[string]model.Settings{
			"staging": {},
			"production": {
				Account: "210987654321",
				Network: model.NetworkSettings{NATGateways: &one, ContainerInsights: &off},
				Service: model.ServiceSettings{
					Autoscaling: model.AutoscalingSettings{MaxCapacity: 20},
				},
				Tags: map[string]string{"tier": "critical"},
			},
		},
	}
}

func TestExpandMergesOverDefaults(t *testing.T) {
	cfg := testConfig()
	envs, err := NewExpander(cfg).Expand()
	require.NoError(t, err)
	require.Len(t, envs, 2)

	prod, staging := envs[0], envs[1]
	assert.Equal(t, "production", prod.Name)
	assert.Equal(t, "bar-service-production", prod.StackName)
	assert.Equal(t, "staging", staging.Name)

	assert.Equal(t, "210987654321", prod.Settings.Account)
	assert.Equal(t, "ap-south-1", prod.Settings.Region)
	assert.Equal(t, 2, prod.Settings.Service.Autoscaling.MinCapacity)
	assert.Equal(t, 20, prod.Settings.Service.Autoscaling.MaxCapacity)
	assert.Equal(t, time.Minute, prod.Settings.Service.Autoscaling.ScaleInCooldown)
	require.NotNil(t, prod.Settings.Network.NATGateways)
	assert.Equal(t, 1, *prod.Settings.Network.NATGateways)
	require.NotNil(t, prod.Settings.Network.ContainerInsights)
	assert.False(t, *prod.Settings.Network.ContainerInsights)
	assert.Equal(t, map[string]string{"team": "platform", "tier": "critical"}, prod.Settings.Tags)

	assert.Equal(t, "123456789012", staging.Settings.Account)
	assert.Equal(t, 10, staging.Settings.Service.Autoscaling.MaxCapacity)
	assert.Nil(t, staging.Settings.Network.NATGateways)
	require.NotNil(t, staging.Settings.Network.ContainerInsights)
	assert.True(t, *staging.Settings.Network.ContainerInsights)
	assert.Equal(t, map[string]string{"team": "platform"}, staging.Settings.Tags)

	// the service is named after the stack
	assert.Equal(t, "bar-service", staging.Settings.Service.Name)

	// defaults are not mutated by overlays
	assert.Equal(t, map[string]string{"team": "platform"}, cfg.Defaults.Tags)
	assert.True(t, *cfg.Defaults.Network.ContainerInsights)
}

func TestExpandWithoutEnvironments(t *testing.T) {
	cfg := testConfig()
	cfg.Environments = nil

	envs, err := NewExpander(cfg).Expand()
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, model.DefaultEnvName, envs[0].Name)
	assert.Equal(t, "bar-service", envs[0].StackName)
}

func TestExpandSelectsEnvironments(t *testing.T) {
	envs, err := NewExpander(testConfig()).Expand("staging")
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "staging", envs[0].Name)

	_, err = NewExpander(testConfig()).Expand("qa")
	assert.Error(t, err)
}

func TestAnalyzerOverrides(t *testing.T) {
	a := NewAnalyzer(testConfig())

	paths, err := a.Overrides("production")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"account",
		"network.containerInsights",
		"network.natGateways",
		"service.autoscaling.maxCapacity",
		"tags.tier",
	}, paths)

	paths, err = a.Overrides("staging")
	require.NoError(t, err)
	assert.Empty(t, paths)

	env, err := a.Environment("staging")
	require.NoError(t, err)
	assert.Equal(t, "bar-service-staging", env.StackName)

	_, err = a.Environment("qa")
	assert.Error(t, err)
}
