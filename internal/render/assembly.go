package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/svcstack/internal/construct"
	"github.com/sourceplane/svcstack/internal/model"
	"github.com/sourceplane/svcstack/internal/schema"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"

	// ManifestFile lists the stacks of an assembly
	ManifestFile = "manifest.json"

	// StackOperationMargin is added to the certificate timeout for the rest
	// of the stack operation
	StackOperationMargin = 30
)

// Renderer materializes synthesized stacks into a cloud assembly
type Renderer struct {
	validator *schema.Validator
}

// NewRenderer creates a new renderer. A nil validator skips manifest
// validation.
func NewRenderer(validator *schema.Validator) *Renderer {
	return &Renderer{validator: validator}
}

// RenderJSON renders a template as indented JSON
func (r *Renderer) RenderJSON(t *model.Template) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderYAML renders a template as YAML
func (r *Renderer) RenderYAML(t *model.Template) ([]byte, error) {
	return yaml.Marshal(t)
}

// Render renders a template in format
func (r *Renderer) Render(t *model.Template, format string) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return r.RenderJSON(t)
	case FormatYAML:
		return r.RenderYAML(t)
	default:
		return nil, fmt.Errorf("unsupported format %q (json or yaml)", format)
	}
}

// TemplateFile returns the file name of a stack's template
func TemplateFile(stackName, format string) string {
	if format == FormatYAML {
		return stackName + ".template.yaml"
	}
	return stackName + ".template.json"
}

// RenderAssembly builds the manifest for a set of synthesized environments
func (r *Renderer) RenderAssembly(metadata model.Metadata, results []*construct.Result, format string) *model.Assembly {
	assembly := &model.Assembly{
		APIVersion: model.APIVersion,
		Kind:       model.KindAssembly,
		Metadata:   metadata,
		Stacks:     make([]model.AssemblyStack, 0, len(results)),
	}

	for _, res := range results {
		cfg := res.Environment.Settings

		outputs := make([]string, 0, len(res.Template.Outputs))
		for name := range res.Template.Outputs {
			outputs = append(outputs, name)
		}
		sort.Strings(outputs)

		assembly.Stacks = append(assembly.Stacks, model.AssemblyStack{
			Name:             res.Environment.StackName,
			Environment:      res.Environment.Name,
			Target:           fmt.Sprintf("aws://%s/%s", cfg.Account, cfg.Region),
			TemplateFile:     TemplateFile(res.Environment.StackName, format),
			TimeoutInMinutes: int(math.Ceil(cfg.Service.CertificateTimeout.Minutes())) + StackOperationMargin,
			Outputs:          outputs,
			Tags:             cfg.Tags,
		})
	}

	sort.Slice(assembly.Stacks, func(i, j int) bool {
		return assembly.Stacks[i].Name < assembly.Stacks[j].Name
	})
	return assembly
}

// WriteAssembly writes one template per stack and the manifest into dir
func (r *Renderer) WriteAssembly(dir string, metadata model.Metadata, results []*construct.Result, format string) (*model.Assembly, error) {
	assembly := r.RenderAssembly(metadata, results, format)
	if r.validator != nil {
		if err := r.validator.ValidateAssembly(assembly); err != nil {
			return nil, fmt.Errorf("invalid assembly manifest: %w", err)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	for _, res := range results {
		data, err := r.Render(res.Template, format)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", res.Environment.StackName, err)
		}
		path := filepath.Join(dir, TemplateFile(res.Environment.StackName, format))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write template to %s: %w", path, err)
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(assembly); err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest to %s: %w", path, err)
	}

	return assembly, nil
}

// DebugDump outputs debug information about the assembly
func (r *Renderer) DebugDump(assembly *model.Assembly) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Assembly: %s\n", assembly.Metadata.Name))
	sb.WriteString(fmt.Sprintf("Stacks: %d\n\n", len(assembly.Stacks)))

	for _, s := range assembly.Stacks {
		sb.WriteString(fmt.Sprintf("Stack: %s\n", s.Name))
		sb.WriteString(fmt.Sprintf("  Environment: %s\n", s.Environment))
		sb.WriteString(fmt.Sprintf("  Target: %s\n", s.Target))
		sb.WriteString(fmt.Sprintf("  Template: %s\n", s.TemplateFile))
		sb.WriteString(fmt.Sprintf("  Timeout: %dm\n", s.TimeoutInMinutes))
		sb.WriteString(fmt.Sprintf("  Outputs: %v\n", s.Outputs))
		sb.WriteString("\n")
	}

	return sb.String()
}
