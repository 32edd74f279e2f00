package model

import (
	"fmt"
	"sort"
)

const TemplateFormatVersion = "2010-09-09"

// Template is a CloudFormation template: the synthesized resource graph of
// one stack
type Template struct {
	AWSTemplateFormatVersion string                `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                `json:"Description,omitempty" yaml:"Description,omitempty"`
	Parameters               map[string]*Parameter `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Resources                map[string]*Resource  `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]*Output    `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// Resource is a single declared resource
type Resource struct {
	Type                string                 `json:"Type" yaml:"Type"`
	Properties          map[string]interface{} `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           []string               `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string                 `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string                 `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
	Metadata            map[string]interface{} `json:"Metadata,omitempty" yaml:"Metadata,omitempty"`
}

// Parameter is a template parameter. svcstack only emits SSM-backed
// parameters, so values are never embedded in the template.
type Parameter struct {
	Type        string `json:"Type" yaml:"Type"`
	Default     string `json:"Default,omitempty" yaml:"Default,omitempty"`
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
}

// Output is a stack output surfaced to operators and external tooling
type Output struct {
	Description string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       interface{}            `json:"Value" yaml:"Value"`
	Export      map[string]interface{} `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// NewTemplate creates an empty template
func NewTemplate(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: TemplateFormatVersion,
		Description:              description,
		Parameters:               make(map[string]*Parameter),
		Resources:                make(map[string]*Resource),
		Outputs:                  make(map[string]*Output),
	}
}

// ResourcesOfType returns logical IDs of all resources with the given type
func (t *Template) ResourcesOfType(resourceType string) []string {
	ids := make([]string, 0)
	for id, res := range t.Resources {
		if res.Type == resourceType {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Ref returns a Ref intrinsic
func Ref(logicalID string) map[string]interface{} {
	return map[string]interface{}{"Ref": logicalID}
}

// GetAtt returns a Fn::GetAtt intrinsic
func GetAtt(logicalID, attribute string) map[string]interface{} {
	return map[string]interface{}{"Fn::GetAtt": []interface{}{logicalID, attribute}}
}

// Sub returns a Fn::Sub intrinsic
func Sub(format string) map[string]interface{} {
	return map[string]interface{}{"Fn::Sub": format}
}

// Join returns a Fn::Join intrinsic
func Join(sep string, parts ...interface{}) map[string]interface{} {
	return map[string]interface{}{"Fn::Join": []interface{}{sep, parts}}
}

// Select returns a Fn::Select intrinsic
func Select(index int, list interface{}) map[string]interface{} {
	return map[string]interface{}{"Fn::Select": []interface{}{index, list}}
}

// GetAZs returns the availability zones of the stack's region
func GetAZs() map[string]interface{} {
	return map[string]interface{}{"Fn::GetAZs": ""}
}

// SecretsManagerRef returns a dynamic reference resolved by CloudFormation at
// deploy time, so the secret value never appears in the template
func SecretsManagerRef(secretName string) string {
	return fmt.Sprintf("{{resolve:secretsmanager:%s}}", secretName)
}

// Pseudo parameters
const (
	AWSAccountID = "AWS::AccountId"
	AWSRegion    = "AWS::Region"
	AWSPartition = "AWS::Partition"
	AWSURLSuffix = "AWS::URLSuffix"
	AWSStackName = "AWS::StackName"
	AWSNoValue   = "AWS::NoValue"
)
