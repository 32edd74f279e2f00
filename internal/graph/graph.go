package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sourceplane/svcstack/internal/model"
)

// CycleError reports the resources forming a dependency cycle
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in resource dependencies: %s", strings.Join(e.Cycle, " -> "))
}

// ResourceGraph is the dependency DAG of a synthesized template. Edges are the
// union of explicit DependsOn entries and Ref / Fn::GetAtt / Fn::Sub references.
type ResourceGraph struct {
	template *model.Template
	deps     map[string][]string // logicalID -> [logicalIDs it depends on]
}

// New builds the graph of a template, failing on references to resources or
// parameters that do not exist
func New(t *model.Template) (*ResourceGraph, error) {
	if t == nil {
		return nil, fmt.Errorf("template cannot be nil")
	}

	g := &ResourceGraph{
		template: t,
		deps:     make(map[string][]string, len(t.Resources)),
	}

	for _, id := range g.IDs() {
		res := t.Resources[id]
		seen := make(map[string]bool)

		for _, dep := range res.DependsOn {
			if _, ok := t.Resources[dep]; !ok {
				return nil, fmt.Errorf("resource %s depends on unknown resource %s", id, dep)
			}
			seen[dep] = true
		}

		for _, ref := range References(res.Properties) {
			if _, ok := t.Resources[ref]; ok {
				seen[ref] = true
				continue
			}
			if _, ok := t.Parameters[ref]; ok {
				continue
			}
			return nil, fmt.Errorf("resource %s references unknown resource or parameter %s", id, ref)
		}

		if seen[id] {
			return nil, fmt.Errorf("resource %s references itself", id)
		}
		g.deps[id] = sortedKeys(seen)
	}

	for name, out := range t.Outputs {
		for _, ref := range References(out.Value) {
			_, isRes := t.Resources[ref]
			_, isParam := t.Parameters[ref]
			if !isRes && !isParam {
				return nil, fmt.Errorf("output %s references unknown resource or parameter %s", name, ref)
			}
		}
	}

	return g, nil
}

// IDs returns all logical IDs, sorted
func (g *ResourceGraph) IDs() []string {
	ids := make([]string, 0, len(g.template.Resources))
	for id := range g.template.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DependenciesOf returns the direct dependencies of a resource
func (g *ResourceGraph) DependenciesOf(id string) []string {
	return g.deps[id]
}

// DetectCycles performs cycle detection on the resource graph using DFS
func (g *ResourceGraph) DetectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range g.IDs() {
		if visited[id] {
			continue
		}
		if cycle := g.cycleDFS(id, visited, recStack, nil); cycle != nil {
			return &CycleError{Cycle: cycle}
		}
	}

	return nil
}

// cycleDFS returns the cycle path reachable from node, if any
func (g *ResourceGraph) cycleDFS(node string, visited, recStack map[string]bool, path []string) []string {
	visited[node] = true
	recStack[node] = true
	path = append(path, node)

	for _, dep := range g.deps[node] {
		if !visited[dep] {
			if cycle := g.cycleDFS(dep, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dep] {
			for i, n := range path {
				if n == dep {
					return append(append([]string{}, path[i:]...), dep)
				}
			}
		}
	}

	recStack[node] = false
	return nil
}

// TopologicalSort orders resources so every resource comes after its
// dependencies, using Kahn's algorithm with a sorted queue so the order is
// stable across runs
func (g *ResourceGraph) TopologicalSort() ([]string, error) {
	dependents := make(map[string][]string)
	inDegree := make(map[string]int)

	for _, id := range g.IDs() {
		inDegree[id] = len(g.deps[id])
		for _, dep := range g.deps[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	queue := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	sorted := make([]string, 0, len(inDegree))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)

		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	if len(sorted) != len(inDegree) {
		if err := g.DetectCycles(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to topologically sort: possible cycle detected")
	}

	return sorted, nil
}

var subVarPattern = regexp.MustCompile(`\$\{([^!}][^}]*)\}`)

// References returns the logical IDs referenced by intrinsics anywhere in v.
// Pseudo parameters (AWS::*) are skipped.
func References(v interface{}) []string {
	found := make(map[string]bool)
	collectReferences(v, found, nil)
	return sortedKeys(found)
}

func collectReferences(v interface{}, found map[string]bool, shadowed map[string]bool) {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 1 {
			if ref, ok := val["Ref"].(string); ok {
				addReference(ref, found, shadowed)
				return
			}
			if att, ok := val["Fn::GetAtt"].([]interface{}); ok && len(att) > 0 {
				if id, ok := att[0].(string); ok {
					addReference(id, found, shadowed)
				}
				return
			}
			if sub, ok := val["Fn::Sub"]; ok {
				collectSub(sub, found)
				return
			}
		}
		for _, key := range sortedKeys(val) {
			collectReferences(val[key], found, shadowed)
		}
	case []interface{}:
		for _, item := range val {
			collectReferences(item, found, shadowed)
		}
	case []map[string]interface{}:
		for _, item := range val {
			collectReferences(item, found, shadowed)
		}
	}
}

func collectSub(sub interface{}, found map[string]bool) {
	switch s := sub.(type) {
	case string:
		for _, name := range subVariables(s) {
			addReference(name, found, nil)
		}
	case []interface{}:
		if len(s) != 2 {
			return
		}
		format, _ := s[0].(string)
		vars, _ := s[1].(map[string]interface{})
		shadowed := make(map[string]bool, len(vars))
		for name, value := range vars {
			shadowed[name] = true
			collectReferences(value, found, nil)
		}
		for _, name := range subVariables(format) {
			addReference(name, found, shadowed)
		}
	}
}

// subVariables extracts the resource part of ${Name} and ${Name.Attr}
func subVariables(format string) []string {
	names := make([]string, 0)
	for _, m := range subVarPattern.FindAllStringSubmatch(format, -1) {
		name := m[1]
		if i := strings.Index(name, "."); i >= 0 {
			name = name[:i]
		}
		names = append(names, name)
	}
	return names
}

func addReference(id string, found, shadowed map[string]bool) {
	if strings.HasPrefix(id, "AWS::") || shadowed[id] {
		return
	}
	found[id] = true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
