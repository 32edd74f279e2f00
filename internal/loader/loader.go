package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sourceplane/svcstack/internal/model"
)

// DefaultConfigFile is read when no --config flag is given
const DefaultConfigFile = "svcstack.yaml"

// Document is a loaded configuration file: the raw tree for schema
// validation and the typed configuration
type Document struct {
	Path   string
	Raw    interface{}
	Config *model.StackConfig
}

// LoadConfig loads and parses a stack configuration YAML file
func LoadConfig(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	doc, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	return doc, nil
}

// ParseConfig parses a stack configuration. Unknown fields are rejected.
func ParseConfig(data []byte) (*Document, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("config is empty")
	}

	var cfg model.StackConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &Document{Raw: raw, Config: &cfg}, nil
}
