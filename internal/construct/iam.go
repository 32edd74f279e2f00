package construct

import "github.com/sourceplane/svcstack/internal/model"

// PolicyStatement is one IAM Allow statement
type PolicyStatement struct {
	Actions   []string
	Resources []interface{}
	// Conditions is emitted as the statement's Condition block when set
	Conditions map[string]interface{}
}

func (p PolicyStatement) render() map[string]interface{} {
	actions := make([]interface{}, len(p.Actions))
	for i, a := range p.Actions {
		actions[i] = a
	}

	stmt := map[string]interface{}{
		"Effect":   "Allow",
		"Action":   actions,
		"Resource": p.Resources,
	}
	if len(p.Conditions) > 0 {
		stmt["Condition"] = p.Conditions
	}
	return stmt
}

// Grant records a permission handed to a principal on a resource
type Grant struct {
	Principal string // role logical ID
	Resource  string // logical ID of the resource the grant targets
	Actions   []string
}

// Role is an IAM role assumed by a service principal. Statements added to
// the role land in a single inline policy resource.
type Role struct {
	LogicalID string

	scope    Scope
	policyID string
	policy   *model.Resource
}

func newRole(scope Scope, id, servicePrincipal string, managedPolicyArns ...interface{}) *Role {
	props := map[string]interface{}{
		"AssumeRolePolicyDocument": map[string]interface{}{
			"Version": "2012-10-17",
			"Statement": []interface{}{
				map[string]interface{}{
					"Effect":    "Allow",
					"Principal": map[string]interface{}{"Service": servicePrincipal},
					"Action":    "sts:AssumeRole",
				},
			},
		},
	}
	if len(managedPolicyArns) > 0 {
		props["ManagedPolicyArns"] = managedPolicyArns
	}

	lid, _ := scope.AddResource(id, "AWS::IAM::Role", props)
	return &Role{LogicalID: lid, scope: scope.Child(id)}
}

// Arn returns the role ARN
func (r *Role) Arn() interface{} {
	return model.GetAtt(r.LogicalID, "Arn")
}

// PolicyID returns the logical ID of the role's inline policy, or "" when no
// statement has been added yet
func (r *Role) PolicyID() string {
	return r.policyID
}

// AddToPolicy appends statements to the role's default policy
func (r *Role) AddToPolicy(statements ...PolicyStatement) {
	if r.policy == nil {
		r.policyID, r.policy = r.scope.AddResource("DefaultPolicy", "AWS::IAM::Policy", map[string]interface{}{
			"PolicyName": r.scope.LogicalID("DefaultPolicy"),
			"Roles":      []interface{}{model.Ref(r.LogicalID)},
			"PolicyDocument": map[string]interface{}{
				"Version":   "2012-10-17",
				"Statement": []interface{}{},
			},
		})
	}

	doc := r.policy.Properties["PolicyDocument"].(map[string]interface{})
	stmts := doc["Statement"].([]interface{})
	for _, s := range statements {
		stmts = append(stmts, s.render())
	}
	doc["Statement"] = stmts
}

// grant adds the statements to the role and records the grant on the stack
func (r *Role) grant(resourceID string, statements ...PolicyStatement) {
	r.AddToPolicy(statements...)

	actions := make([]string, 0)
	for _, s := range statements {
		actions = append(actions, s.Actions...)
	}
	r.scope.stack.grants = append(r.scope.stack.grants, Grant{
		Principal: r.LogicalID,
		Resource:  resourceID,
		Actions:   actions,
	})
}

func arnSub(format string) map[string]interface{} {
	return model.Sub("arn:${AWS::Partition}:" + format)
}
