package render

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/sourceplane/svcstack/internal/construct"
	"github.com/sourceplane/svcstack/internal/graph"
	"github.com/sourceplane/svcstack/internal/model"
)

const (
	ViewTree         = "tree"
	ViewDependencies = "dependencies"
	ViewOutputs      = "outputs"
)

var (
	unitColor = color.New(color.Bold)
	typeColor = color.New(color.FgCyan)
)

// ResourceViewer provides human-readable views of a synthesized template
type ResourceViewer struct {
	template *model.Template
	graph    *graph.ResourceGraph
}

// NewResourceViewer creates a viewer over a synthesized template
func NewResourceViewer(t *model.Template) (*ResourceViewer, error) {
	g, err := graph.New(t)
	if err != nil {
		return nil, err
	}
	return &ResourceViewer{template: t, graph: g}, nil
}

// View renders the named view
func (rv *ResourceViewer) View(name string) (string, error) {
	switch name {
	case ViewTree, "":
		return rv.ViewTree(), nil
	case ViewDependencies:
		return rv.ViewDependencies(), nil
	case ViewOutputs:
		return rv.ViewOutputs(), nil
	default:
		if id, ok := strings.CutPrefix(name, "resource="); ok {
			return rv.ViewResource(id), nil
		}
		return "", fmt.Errorf("unknown view %q (tree, dependencies, outputs, resource=ID)", name)
	}
}

// unitOf returns the unit a resource was declared in, from its path metadata
func (rv *ResourceViewer) unitOf(id string) string {
	res := rv.template.Resources[id]
	path, _ := res.Metadata[construct.PathMetadataKey].(string)
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "Stack"
	}
	return parts[1]
}

// ViewTree returns resources grouped by unit in construction order
func (rv *ResourceViewer) ViewTree() string {
	if len(rv.template.Resources) == 0 {
		return "No resources in template"
	}

	byUnit := make(map[string][]string)
	for _, id := range rv.graph.IDs() {
		unit := rv.unitOf(id)
		byUnit[unit] = append(byUnit[unit], id)
	}

	var extra []string
	for unit := range byUnit {
		if !slices.Contains(construct.Units, unit) {
			extra = append(extra, unit)
		}
	}
	sort.Strings(extra)
	units := append(append([]string{}, construct.Units...), extra...)

	var sb strings.Builder
	present := make([]string, 0, len(units))
	for _, unit := range units {
		if len(byUnit[unit]) > 0 {
			present = append(present, unit)
		}
	}

	for i, unit := range present {
		isLastUnit := i == len(present)-1
		unitPrefix, connector := "├─ ", "│  "
		if isLastUnit {
			unitPrefix, connector = "└─ ", "   "
		}
		ids := byUnit[unit]
		sb.WriteString(fmt.Sprintf("%s%s (%d)\n", unitPrefix, unitColor.Sprint(unit), len(ids)))

		for j, id := range ids {
			prefix := connector + "├─ "
			if j == len(ids)-1 {
				prefix = connector + "└─ "
			}
			sb.WriteString(fmt.Sprintf("%s%s %s\n", prefix, id, typeColor.Sprintf("[%s]", rv.template.Resources[id].Type)))
		}
	}

	sb.WriteString("═══════════════════════════════════════════════════════════\n")
	sb.WriteString(fmt.Sprintf("Summary: %d units, %d resources, %d outputs\n", len(present), len(rv.template.Resources), len(rv.template.Outputs)))
	return sb.String()
}

// ViewDependencies shows the direct dependencies of every resource
func (rv *ResourceViewer) ViewDependencies() string {
	if len(rv.template.Resources) == 0 {
		return "No resources in template"
	}

	var sb strings.Builder
	sb.WriteString("Resource Dependencies\n")
	sb.WriteString("═══════════════════════════════════════════════════════════\n\n")

	ids := rv.graph.IDs()
	for i, id := range ids {
		prefix := "├─ "
		if i == len(ids)-1 {
			prefix = "└─ "
		}
		sb.WriteString(fmt.Sprintf("%s%s [%s]\n", prefix, id, rv.template.Resources[id].Type))

		deps := rv.graph.DependenciesOf(id)
		if len(deps) == 0 {
			sb.WriteString("   (no dependencies)\n")
		}
		for j, dep := range deps {
			depPrefix := "  ├─ "
			if j == len(deps)-1 {
				depPrefix = "  └─ "
			}
			sb.WriteString(fmt.Sprintf("%s(depends on) %s\n", depPrefix, dep))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ViewOutputs lists the stack outputs with their values
func (rv *ResourceViewer) ViewOutputs() string {
	if len(rv.template.Outputs) == 0 {
		return "No outputs in template"
	}

	names := make([]string, 0, len(rv.template.Outputs))
	for name := range rv.template.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		out := rv.template.Outputs[name]
		value, _ := json.Marshal(out.Value)
		sb.WriteString(fmt.Sprintf("%-16s %s\n", name, value))
		if out.Description != "" {
			sb.WriteString(fmt.Sprintf("%-16s %s\n", "", out.Description))
		}
	}
	return sb.String()
}

// ViewResource shows one resource with its direct and transitive neighbours
func (rv *ResourceViewer) ViewResource(id string) string {
	res, ok := rv.template.Resources[id]
	if !ok {
		return fmt.Sprintf("No resource found: %s", id)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s [%s]\n", id, res.Type))
	sb.WriteString("═══════════════════════════════════════════════════════════\n")
	sb.WriteString(fmt.Sprintf("Unit: %s\n", rv.unitOf(id)))

	sections := []struct {
		title string
		ids   []string
	}{
		{"Depends on", rv.graph.DependenciesOf(id)},
		{"Required by", rv.graph.Dependents(id)},
		{"All dependencies", rv.graph.TransitiveDependencies(id)},
	}
	for _, s := range sections {
		sb.WriteString(fmt.Sprintf("%s (%d):\n", s.title, len(s.ids)))
		for _, dep := range s.ids {
			sb.WriteString(fmt.Sprintf("  %s\n", dep))
		}
	}
	return sb.String()
}
