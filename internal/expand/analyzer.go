package expand

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/svcstack/internal/model"
)

// Analyzer answers questions about how environments differ from the defaults
type Analyzer struct {
	config   *model.StackConfig
	expander *Expander
	envs     []model.Environment
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(config *model.StackConfig) *Analyzer {
	return &Analyzer{
		config:   config,
		expander: NewExpander(config),
	}
}

// Environments expands all environments once and caches the result
func (a *Analyzer) Environments() ([]model.Environment, error) {
	if a.envs != nil {
		return a.envs, nil
	}

	envs, err := a.expander.Expand()
	if err != nil {
		return nil, err
	}

	a.envs = envs
	return a.envs, nil
}

// Environment returns one expanded environment by name
func (a *Analyzer) Environment(name string) (*model.Environment, error) {
	envs, err := a.Environments()
	if err != nil {
		return nil, err
	}
	for i := range envs {
		if envs[i].Name == name {
			return &envs[i], nil
		}
	}
	return nil, fmt.Errorf("environment not found: %s", name)
}

// Overrides returns the dotted paths of the settings an environment sets
// over the defaults, sorted
func (a *Analyzer) Overrides(name string) ([]string, error) {
	overlay, ok := a.config.Environments[name]
	if !ok {
		if name == model.DefaultEnvName && len(a.config.Environments) == 0 {
			return []string{}, nil
		}
		return nil, fmt.Errorf("environment not found: %s", name)
	}

	// Zero values are dropped by omitempty, leaving only what was set
	data, err := yaml.Marshal(overlay)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect environment %s: %w", name, err)
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to inspect environment %s: %w", name, err)
	}

	paths := make([]string, 0)
	flatten("", tree, &paths)
	sort.Strings(paths)
	return paths, nil
}

func flatten(prefix string, tree map[string]interface{}, paths *[]string) {
	for k, v := range tree {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok && len(sub) > 0 {
			flatten(path, sub, paths)
			continue
		}
		*paths = append(*paths, path)
	}
}
