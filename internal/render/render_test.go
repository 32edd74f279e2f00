package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/svcstack/internal/construct"
	"github.com/sourceplane/svcstack/internal/model"
	"github.com/sourceplane/svcstack/internal/schema"
)

func init() {
	color.NoColor = true
}

// testResult declares a small Registry -> Service chain
func testResult(t *testing.T, envName, stackName string) *construct.Result {
	t.Helper()

	stack := construct.NewStack(stackName, "123456789012", "ap-south-1", "test")
	root := stack.Root()

	repoID, _ := root.Child(construct.UnitRegistry).AddResource("Repository", "AWS::ECR::Repository", map[string]interface{}{
		"RepositoryName": "bar-service",
	})
	svc := root.Child(construct.UnitService)
	svc.AddResource("Parameter", "AWS::SSM::Parameter", map[string]interface{}{
		"Type":  "String",
		"Value": model.GetAtt(repoID, "Arn"),
	})
	svc.AddOutput("RepositoryUri", "Image repository URI", model.GetAtt(repoID, "RepositoryUri"))

	tmpl, err := stack.Synth()
	require.NoError(t, err)

	return &construct.Result{
		Environment: model.Environment{
			Name:      envName,
			StackName: stackName,
			Settings: model.Settings{
				Account: "123456789012",
				Region:  "ap-south-1",
				Service: model.ServiceSettings{CertificateTimeout: 45 * time.Minute},
				Tags:    map[string]string{"team": "platform"},
			},
		},
		Stack:    stack,
		Template: tmpl,
	}
}

func TestWriteAssembly(t *testing.T) {
	validator, err := schema.NewValidator()
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "cdk.out")
	results := []*construct.Result{
		testResult(t, "staging", "bar-service-staging"),
		testResult(t, "production", "bar-service-production"),
	}

	assembly, err := NewRenderer(validator).WriteAssembly(dir, model.Metadata{Name: "bar-service"}, results, FormatJSON)
	require.NoError(t, err)

	require.Len(t, assembly.Stacks, 2)
	prod := assembly.Stacks[0]
	assert.Equal(t, "bar-service-production", prod.Name)
	assert.Equal(t, "aws://123456789012/ap-south-1", prod.Target)
	assert.Equal(t, "bar-service-production.template.json", prod.TemplateFile)
	assert.Equal(t, 75, prod.TimeoutInMinutes)
	assert.Equal(t, []string{"RepositoryUri"}, prod.Outputs)

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	var manifest model.Assembly
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, model.KindAssembly, manifest.Kind)

	tmpl, err := os.ReadFile(filepath.Join(dir, prod.TemplateFile))
	require.NoError(t, err)
	assert.Contains(t, string(tmpl), `"AWSTemplateFormatVersion": "2010-09-09"`)
}

func TestRenderIsDeterministic(t *testing.T) {
	r := NewRenderer(nil)
	first, err := r.Render(testResult(t, "staging", "s").Template, FormatJSON)
	require.NoError(t, err)
	second, err := r.Render(testResult(t, "staging", "s").Template, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	yamlOut, err := r.Render(testResult(t, "staging", "s").Template, FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(yamlOut), "Type: AWS::ECR::Repository")

	_, err = r.Render(testResult(t, "staging", "s").Template, "toml")
	assert.Error(t, err)
}

func TestRenderDoesNotEscapeParameterTypes(t *testing.T) {
	stack := construct.NewStack("s", "123456789012", "ap-south-1", "test")
	ref := stack.Root().AddSSMParameter("Branch", "/bar/branch")
	stack.Root().AddOutput("Branch", "", ref)
	tmpl, err := stack.Synth()
	require.NoError(t, err)

	out, err := NewRenderer(nil).RenderJSON(tmpl)
	require.NoError(t, err)
	assert.Contains(t, string(out), "AWS::SSM::Parameter::Value<String>")
}

func TestViews(t *testing.T) {
	res := testResult(t, "staging", "bar-service-staging")
	viewer, err := NewResourceViewer(res.Template)
	require.NoError(t, err)

	tree, err := viewer.View(ViewTree)
	require.NoError(t, err)
	registry := strings.Index(tree, "Registry (1)")
	service := strings.Index(tree, "Service (1)")
	require.GreaterOrEqual(t, registry, 0)
	assert.Greater(t, service, registry)
	assert.Contains(t, tree, "Summary: 2 units, 2 resources, 1 outputs")

	repoID := construct.NewStack("x", "", "", "").Root().Child(construct.UnitRegistry).LogicalID("Repository")
	deps, err := viewer.View(ViewDependencies)
	require.NoError(t, err)
	assert.Contains(t, deps, "(depends on) "+repoID)

	outputs, err := viewer.View(ViewOutputs)
	require.NoError(t, err)
	assert.Contains(t, outputs, `{"Fn::GetAtt":["`+repoID+`","RepositoryUri"]}`)

	detail, err := viewer.View("resource=" + repoID)
	require.NoError(t, err)
	assert.Contains(t, detail, "Unit: Registry")
	assert.Contains(t, detail, "Required by (1):")

	_, err = viewer.View("graphviz")
	assert.Error(t, err)
}
