package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.schema.yaml
var schemaFS embed.FS

const (
	stackSchemaFile    = "schemas/stack.schema.yaml"
	assemblySchemaFile = "schemas/assembly.schema.yaml"
)

// Validator handles JSON schema validation
type Validator struct {
	stackSchema    *jsonschema.Schema
	assemblySchema *jsonschema.Schema
}

// NewValidator compiles the embedded schemas
func NewValidator() (*Validator, error) {
	v := &Validator{}

	stackSchema, err := loadSchema(stackSchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load stack schema: %w", err)
	}
	v.stackSchema = stackSchema

	assemblySchema, err := loadSchema(assemblySchemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load assembly schema: %w", err)
	}
	v.assemblySchema = assemblySchema

	return v, nil
}

// ValidateStack validates a stack configuration document. data is the
// document as decoded from YAML.
func (v *Validator) ValidateStack(data interface{}) error {
	if v.stackSchema == nil {
		return fmt.Errorf("stack schema not loaded")
	}
	doc, err := toJSONValue(data)
	if err != nil {
		return err
	}
	return v.stackSchema.Validate(doc)
}

// ValidateAssembly validates an assembly manifest. data may be any value
// that marshals to JSON.
func (v *Validator) ValidateAssembly(data interface{}) error {
	if v.assemblySchema == nil {
		return fmt.Errorf("assembly schema not loaded")
	}
	doc, err := toJSONValue(data)
	if err != nil {
		return err
	}
	return v.assemblySchema.Validate(doc)
}

// toJSONValue normalizes a value to the types the schema validator expects
func toJSONValue(data interface{}) (interface{}, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document for validation: %w", err)
	}
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document for validation: %w", err)
	}
	return doc, nil
}

// loadSchema loads and compiles an embedded schema file
func loadSchema(path string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	// Parse YAML to interface{} (supports both YAML and JSON)
	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	// Convert to JSON for schema compiler
	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	schemaURI := "svcstack://" + path
	compiler := jsonschema.NewCompiler()
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		if url == schemaURI {
			return io.NopCloser(strings.NewReader(string(jsonData))), nil
		}
		return nil, fmt.Errorf("external schema reference not supported: %s", url)
	}

	schema, err := compiler.Compile(schemaURI)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return schema, nil
}
