package graph

// Dependents returns all resources that directly depend on the given resource
func (g *ResourceGraph) Dependents(id string) []string {
	dependents := make([]string, 0)

	for _, name := range g.IDs() {
		for _, dep := range g.deps[name] {
			if dep == id {
				dependents = append(dependents, name)
				break
			}
		}
	}

	return dependents
}

// TransitiveDependencies returns every resource the given resource needs,
// directly or indirectly
func (g *ResourceGraph) TransitiveDependencies(id string) []string {
	return g.traverse(id, g.DependenciesOf)
}

// TransitiveDependents returns every resource that directly or indirectly
// needs the given resource
func (g *ResourceGraph) TransitiveDependents(id string) []string {
	return g.traverse(id, g.Dependents)
}

func (g *ResourceGraph) traverse(start string, next func(string) []string) []string {
	result := make(map[string]bool)
	visited := make(map[string]bool)

	var walk func(string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true

		for _, n := range next(name) {
			result[n] = true
			walk(n)
		}
	}

	walk(start)
	delete(result, start)
	return sortedKeys(result)
}

// DependsOnTransitively reports whether from needs to, directly or indirectly
func (g *ResourceGraph) DependsOnTransitively(from, to string) bool {
	for _, dep := range g.TransitiveDependencies(from) {
		if dep == to {
			return true
		}
	}
	return false
}
