package construct

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/multierr"

	"github.com/sourceplane/svcstack/internal/graph"
	"github.com/sourceplane/svcstack/internal/model"
)

// PathMetadataKey records the construct path of every resource
const PathMetadataKey = "svcstack:path"

// Stack collects the resources declared by the units of one environment and
// synthesizes them into a template
type Stack struct {
	Name    string
	Account string
	Region  string
	// Tags are applied to every taggable resource at synthesis
	Tags map[string]string

	template *model.Template
	paths    map[string]string // logicalID -> construct path
	grants   []Grant
	errs     error
}

// NewStack creates an empty stack
func NewStack(name, account, region, description string) *Stack {
	return &Stack{
		Name:     name,
		Account:  account,
		Region:   region,
		template: model.NewTemplate(description),
		paths:    make(map[string]string),
	}
}

// Root returns the top-level scope of the stack
func (s *Stack) Root() Scope {
	return Scope{stack: s}
}

// Resource returns a declared resource by logical ID
func (s *Stack) Resource(logicalID string) (*model.Resource, bool) {
	r, ok := s.template.Resources[logicalID]
	return r, ok
}

// Grants returns all permission grants recorded in the stack
func (s *Stack) Grants() []Grant {
	grants := make([]Grant, len(s.grants))
	copy(grants, s.grants)
	sort.SliceStable(grants, func(i, j int) bool {
		if grants[i].Principal != grants[j].Principal {
			return grants[i].Principal < grants[j].Principal
		}
		return grants[i].Resource < grants[j].Resource
	})
	return grants
}

// Synth validates the resource graph and returns the template. Construction
// errors recorded along the way are returned together.
func (s *Stack) Synth() (*model.Template, error) {
	if s.errs != nil {
		return nil, s.errs
	}

	g, err := graph.New(s.template)
	if err != nil {
		return nil, fmt.Errorf("invalid resource graph: %w", err)
	}
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	s.applyTags()
	return s.template, nil
}

// taggedTypes take Tags as a list of Key/Value pairs
var taggedTypes = map[string]bool{
	"AWS::CertificateManager::Certificate":      true,
	"AWS::CodeBuild::Project":                   true,
	"AWS::CodePipeline::Pipeline":               true,
	"AWS::EC2::EIP":                             true,
	"AWS::EC2::InternetGateway":                 true,
	"AWS::EC2::NatGateway":                      true,
	"AWS::EC2::RouteTable":                      true,
	"AWS::EC2::SecurityGroup":                   true,
	"AWS::EC2::Subnet":                          true,
	"AWS::EC2::VPC":                             true,
	"AWS::ECR::Repository":                      true,
	"AWS::ECS::Cluster":                         true,
	"AWS::ECS::Service":                         true,
	"AWS::ECS::TaskDefinition":                  true,
	"AWS::ElasticLoadBalancingV2::LoadBalancer": true,
	"AWS::ElasticLoadBalancingV2::TargetGroup":  true,
	"AWS::IAM::Role":                            true,
	"AWS::Logs::LogGroup":                       true,
	"AWS::S3::Bucket":                           true,
	"AWS::SNS::Topic":                           true,
}

// applyTags appends the stack tags to taggable resources. Keys a resource
// already sets, such as Name, are left alone.
func (s *Stack) applyTags() {
	if len(s.Tags) == 0 {
		return
	}
	keys := make([]string, 0, len(s.Tags))
	for k := range s.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, res := range s.template.Resources {
		if !taggedTypes[res.Type] {
			continue
		}
		tags, _ := res.Properties["Tags"].([]interface{})
		present := map[string]bool{}
		for _, t := range tags {
			if m, ok := t.(map[string]interface{}); ok {
				if k, ok := m["Key"].(string); ok {
					present[k] = true
				}
			}
		}
		for _, k := range keys {
			if !present[k] {
				tags = append(tags, map[string]interface{}{"Key": k, "Value": s.Tags[k]})
			}
		}
		if res.Properties == nil {
			res.Properties = map[string]interface{}{}
		}
		res.Properties["Tags"] = tags
	}
}

func (s *Stack) recordError(err error) {
	s.errs = multierr.Append(s.errs, err)
}

// Scope is a position in the construct tree. Logical IDs are derived from
// the full path so the same inputs always produce the same IDs.
type Scope struct {
	stack *Stack
	path  []string
}

// Child returns a nested scope
func (sc Scope) Child(id string) Scope {
	path := make([]string, len(sc.path), len(sc.path)+1)
	copy(path, sc.path)
	return Scope{stack: sc.stack, path: append(path, id)}
}

// Stack returns the stack the scope belongs to
func (sc Scope) Stack() *Stack {
	return sc.stack
}

// Path returns the slash-separated construct path
func (sc Scope) Path() string {
	return strings.Join(sc.path, "/")
}

// LogicalID returns the logical ID a resource with the given id would get
func (sc Scope) LogicalID(id string) string {
	return logicalID(append(append([]string{}, sc.path...), id))
}

// AddResource declares a resource under this scope and returns it with its
// logical ID. The returned resource may be mutated until Synth.
func (sc Scope) AddResource(id, resourceType string, props map[string]interface{}) (string, *model.Resource) {
	lid := sc.LogicalID(id)
	path := sc.Child(id).Path()

	if existing, ok := sc.stack.paths[lid]; ok {
		sc.stack.recordError(fmt.Errorf("duplicate logical ID %s for %s (already used by %s)", lid, path, existing))
	}

	res := &model.Resource{
		Type:       resourceType,
		Properties: props,
		Metadata:   map[string]interface{}{PathMetadataKey: sc.stack.Name + "/" + path},
	}
	sc.stack.template.Resources[lid] = res
	sc.stack.paths[lid] = path
	return lid, res
}

// AddOutput declares a stack output. Output names are used verbatim.
func (sc Scope) AddOutput(name, description string, value interface{}) {
	if _, ok := sc.stack.template.Outputs[name]; ok {
		sc.stack.recordError(fmt.Errorf("duplicate output %s", name))
	}
	sc.stack.template.Outputs[name] = &model.Output{
		Description: description,
		Value:       value,
		Export:      map[string]interface{}{"Name": model.Sub("${AWS::StackName}-" + name)},
	}
}

// AddSSMParameter declares a template parameter resolved from SSM Parameter
// Store at deploy time and returns a Ref to it
func (sc Scope) AddSSMParameter(id, parameterName string) map[string]interface{} {
	lid := sc.LogicalID(id)
	sc.stack.template.Parameters[lid] = &model.Parameter{
		Type:        "AWS::SSM::Parameter::Value<String>",
		Default:     parameterName,
		Description: "Resolved from SSM parameter " + parameterName,
	}
	return model.Ref(lid)
}

func (sc Scope) recordError(err error) {
	sc.stack.recordError(err)
}

// logicalID concatenates the alphanumeric parts of the path and appends a
// short hash of the full path, which keeps IDs unique even when sanitizing
// collapses two paths into the same prefix
func logicalID(path []string) string {
	var b strings.Builder
	for _, p := range path {
		for _, r := range p {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
			}
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(path, "/")))
	return b.String() + strings.ToUpper(hex.EncodeToString(sum[:4]))
}
