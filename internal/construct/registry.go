package construct

import (
	"encoding/json"
	"fmt"

	"github.com/sourceplane/svcstack/internal/model"
)

var (
	pullActions = []string{
		"ecr:BatchCheckLayerAvailability",
		"ecr:GetDownloadUrlForLayer",
		"ecr:BatchGetImage",
	}
	pushActions = []string{
		"ecr:PutImage",
		"ecr:InitiateLayerUpload",
		"ecr:UploadLayerPart",
		"ecr:CompleteLayerUpload",
	}
)

// RegistryProps configures the image repository
type RegistryProps struct {
	RepositoryName string
	// RemovalPolicy must be set explicitly: model.RemovalPolicyRetain or
	// model.RemovalPolicyDestroy
	RemovalPolicy string
	ScanOnPush    bool
	// MaxImageCount expires the oldest images beyond this count; 0 keeps all
	MaxImageCount int
}

// RepositoryRef identifies the image repository for the service and pipeline
type RepositoryRef struct {
	LogicalID string
	Name      string
}

// URI returns the repository URI (registry host + repository name)
func (r *RepositoryRef) URI() interface{} {
	return model.GetAtt(r.LogicalID, "RepositoryUri")
}

// Arn returns the repository ARN
func (r *RepositoryRef) Arn() interface{} {
	return model.GetAtt(r.LogicalID, "Arn")
}

// GrantPull lets the role pull images from the repository
func (r *RepositoryRef) GrantPull(role *Role) {
	role.grant(r.LogicalID,
		PolicyStatement{Actions: pullActions, Resources: []interface{}{r.Arn()}},
		PolicyStatement{Actions: []string{"ecr:GetAuthorizationToken"}, Resources: []interface{}{"*"}},
	)
}

// GrantPullPush lets the role pull and push images
func (r *RepositoryRef) GrantPullPush(role *Role) {
	actions := append(append([]string{}, pullActions...), pushActions...)
	role.grant(r.LogicalID,
		PolicyStatement{Actions: actions, Resources: []interface{}{r.Arn()}},
		PolicyStatement{Actions: []string{"ecr:GetAuthorizationToken"}, Resources: []interface{}{"*"}},
	)
}

type lifecycleRule struct {
	RulePriority int               `json:"rulePriority"`
	Description  string            `json:"description"`
	Selection    lifecycleSelector `json:"selection"`
	Action       lifecycleAction   `json:"action"`
}

type lifecycleSelector struct {
	TagStatus   string `json:"tagStatus"`
	CountType   string `json:"countType"`
	CountNumber int    `json:"countNumber"`
}

type lifecycleAction struct {
	Type string `json:"type"`
}

// NewRegistry declares the image repository
func NewRegistry(scope Scope, props RegistryProps) (*RepositoryRef, error) {
	if props.RepositoryName == "" {
		return nil, fmt.Errorf("%w: registry repository name", ErrMissingConfig)
	}

	deletionPolicy := ""
	switch props.RemovalPolicy {
	case model.RemovalPolicyRetain:
		deletionPolicy = "Retain"
	case model.RemovalPolicyDestroy:
		deletionPolicy = "Delete"
	case "":
		return nil, fmt.Errorf("%w: registry removal policy must be %q or %q", ErrMissingConfig, model.RemovalPolicyRetain, model.RemovalPolicyDestroy)
	default:
		return nil, fmt.Errorf("%w: unknown registry removal policy %q", ErrInvalidProps, props.RemovalPolicy)
	}
	if props.MaxImageCount < 0 {
		return nil, fmt.Errorf("%w: max image count must not be negative", ErrInvalidProps)
	}

	repoProps := map[string]interface{}{
		"RepositoryName": props.RepositoryName,
		"ImageScanningConfiguration": map[string]interface{}{
			"ScanOnPush": props.ScanOnPush,
		},
	}
	if props.MaxImageCount > 0 {
		policy, err := json.Marshal(map[string]interface{}{
			"rules": []lifecycleRule{{
				RulePriority: 1,
				Description:  fmt.Sprintf("Keep only the last %d images", props.MaxImageCount),
				Selection: lifecycleSelector{
					TagStatus:   "any",
					CountType:   "imageCountMoreThan",
					CountNumber: props.MaxImageCount,
				},
				Action: lifecycleAction{Type: "expire"},
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render lifecycle policy: %w", err)
		}
		repoProps["LifecyclePolicy"] = map[string]interface{}{"LifecyclePolicyText": string(policy)}
	}

	lid, res := scope.AddResource("Repository", "AWS::ECR::Repository", repoProps)
	res.DeletionPolicy = deletionPolicy
	res.UpdateReplacePolicy = deletionPolicy

	repo := &RepositoryRef{LogicalID: lid, Name: props.RepositoryName}

	scope.AddOutput("RepositoryArn", "Image repository ARN", repo.Arn())
	scope.AddOutput("RepositoryUri", "Image repository URI", repo.URI())

	return repo, nil
}
