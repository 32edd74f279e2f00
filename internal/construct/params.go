package construct

import "strings"

// SSMPrefix marks a configuration value resolved from SSM Parameter Store at
// deploy time
const SSMPrefix = "ssm:"

// Value is a configuration value that is either a literal or an SSM
// parameter name
type Value string

// IsParameter reports whether the value names an SSM parameter
func (v Value) IsParameter() bool {
	return strings.HasPrefix(string(v), SSMPrefix)
}

// ParameterName returns the SSM parameter name, or "" for literals
func (v Value) ParameterName() string {
	if !v.IsParameter() {
		return ""
	}
	return strings.TrimPrefix(string(v), SSMPrefix)
}

// Empty reports whether neither a literal nor a parameter name is set
func (v Value) Empty() bool {
	return strings.TrimSpace(strings.TrimPrefix(string(v), SSMPrefix)) == ""
}

// resolve returns the literal, or declares a template parameter under scope
// and returns a Ref to it
func (v Value) resolve(scope Scope, id string) interface{} {
	if v.IsParameter() {
		return scope.AddSSMParameter(id, v.ParameterName())
	}
	return string(v)
}
