package model

// Assembly is the manifest written next to the synthesized templates
type Assembly struct {
	APIVersion string          `json:"apiVersion" yaml:"apiVersion"`
	Kind       string          `json:"kind" yaml:"kind"`
	Metadata   Metadata        `json:"metadata" yaml:"metadata"`
	Stacks     []AssemblyStack `json:"stacks" yaml:"stacks"`
}

// AssemblyStack describes one synthesized stack and how to deploy it
type AssemblyStack struct {
	Name         string `json:"name" yaml:"name"`
	Environment  string `json:"environment" yaml:"environment"`
	Target       string `json:"target" yaml:"target"` // aws://account/region
	TemplateFile string `json:"templateFile" yaml:"templateFile"`
	// TimeoutInMinutes bounds the stack operation, certificate validation included
	TimeoutInMinutes int               `json:"timeoutInMinutes" yaml:"timeoutInMinutes"`
	Outputs          []string          `json:"outputs" yaml:"outputs"`
	Tags             map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}
