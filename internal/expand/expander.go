package expand

import (
	"fmt"
	"sort"

	"github.com/imdario/mergo"

	"github.com/sourceplane/svcstack/internal/model"
)

// Expander turns a stack configuration into one input per environment
type Expander struct {
	config *model.StackConfig
}

// NewExpander creates a new expander
func NewExpander(config *model.StackConfig) *Expander {
	return &Expander{config: config}
}

// Names returns the environment names in order. A configuration without
// environments has a single default environment.
func (e *Expander) Names() []string {
	if len(e.config.Environments) == 0 {
		return []string{model.DefaultEnvName}
	}
	names := make([]string, 0, len(e.config.Environments))
	for name := range e.config.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Expand merges each environment's overrides over the defaults. When only
// is non-empty, just those environments are expanded.
func (e *Expander) Expand(only ...string) ([]model.Environment, error) {
	names := e.Names()
	if len(only) > 0 {
		known := make(map[string]bool, len(names))
		for _, n := range names {
			known[n] = true
		}
		for _, n := range only {
			if !known[n] {
				return nil, fmt.Errorf("unknown environment %q (known: %v)", n, names)
			}
		}
		names = only
	}

	envs := make([]model.Environment, 0, len(names))
	for _, name := range names {
		settings, err := e.merge(name)
		if err != nil {
			return nil, err
		}
		envs = append(envs, model.Environment{
			Name:      name,
			StackName: e.stackName(name),
			Settings:  settings,
		})
	}
	return envs, nil
}

// merge applies the precedence order: defaults, then environment overrides.
// Zero values in an overlay never clear a default.
func (e *Expander) merge(name string) (model.Settings, error) {
	var merged model.Settings

	// Merging into an empty value copies maps instead of sharing them.
	// Pointers are replaced, not dereferenced, so an explicit false in an
	// overlay wins and the defaults are never written through.
	if err := mergo.Merge(&merged, e.config.Defaults, mergo.WithoutDereference); err != nil {
		return model.Settings{}, fmt.Errorf("failed to copy defaults for %s: %w", name, err)
	}

	if overlay, ok := e.config.Environments[name]; ok {
		if err := mergo.Merge(&merged, overlay, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return model.Settings{}, fmt.Errorf("failed to merge environment %s: %w", name, err)
		}
	}

	if merged.Service.Name == "" {
		merged.Service.Name = e.config.Metadata.Name
	}
	return merged, nil
}

func (e *Expander) stackName(env string) string {
	if len(e.config.Environments) == 0 {
		return e.config.Metadata.Name
	}
	return e.config.Metadata.Name + "-" + env
}
