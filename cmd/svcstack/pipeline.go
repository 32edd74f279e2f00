package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/route53"

	"github.com/sourceplane/svcstack/internal/construct"
	"github.com/sourceplane/svcstack/internal/expand"
	"github.com/sourceplane/svcstack/internal/loader"
	"github.com/sourceplane/svcstack/internal/lookup"
	"github.com/sourceplane/svcstack/internal/model"
	"github.com/sourceplane/svcstack/internal/normalize"
	"github.com/sourceplane/svcstack/internal/schema"
)

// loadEnvironments runs load → schema validation → expansion → normalization
func loadEnvironments() (*loader.Document, []model.Environment, error) {
	fmt.Println("□ Loading stack configuration...")
	doc, err := loader.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("□ Validating against schema...")
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, nil, err
	}
	if err := validator.ValidateStack(doc.Raw); err != nil {
		return nil, nil, fmt.Errorf("schema validation failed: %w", err)
	}

	fmt.Println("□ Expanding environments...")
	envs, err := expand.NewExpander(doc.Config).Expand(environments...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to expand environments: %w", err)
	}

	fmt.Println("□ Normalizing settings...")
	envs, err = normalize.NewNormalizer().NormalizeAll(envs)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if debugMode {
		fmt.Printf("  Expanded %d environments\n", len(envs))
	}
	return doc, envs, nil
}

// synthesizeAll synthesizes every environment. Zone lookups are answered from
// the context file and, with --lookups, from Route 53.
func synthesizeAll(ctx context.Context, envs []model.Environment) ([]*construct.Result, error) {
	cache, err := lookup.LoadContext(contextFile)
	if err != nil {
		return nil, err
	}

	fmt.Println("□ Synthesizing stacks...")
	results := make([]*construct.Result, 0, len(envs))
	for _, env := range envs {
		provider, err := zoneProvider(ctx, cache, env.Settings)
		if err != nil {
			return nil, err
		}

		res, err := construct.NewSynthesizer(provider).Synthesize(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", env.Name, err)
		}
		if debugMode {
			fmt.Printf("  %s: %d resources\n", env.StackName, len(res.Template.Resources))
		}
		results = append(results, res)
	}

	if err := cache.Save(); err != nil {
		return nil, err
	}
	return results, nil
}

func zoneProvider(ctx context.Context, cache *lookup.Context, cfg model.Settings) (*lookup.ZoneProvider, error) {
	if !lookups || cfg.Zone.Strategy != model.ZoneStrategyLookup {
		return lookup.NewZoneProvider(cache, nil, cfg.Account, cfg.Region), nil
	}

	awsCfg, err := lookup.LoadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	return lookup.NewZoneProvider(cache, route53.NewFromConfig(awsCfg), cfg.Account, cfg.Region), nil
}
