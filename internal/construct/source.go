package construct

import (
	"fmt"

	"github.com/sourceplane/svcstack/internal/model"
)

const (
	SourceActionName = "Source"
	// SourceNamespace exposes the source action's output variables, for
	// example #{SourceVariables.CommitId}
	SourceNamespace = "SourceVariables"
)

// SourceTrigger starts the pipeline on changes to the source branch
type SourceTrigger interface {
	Strategy() string
	// action renders the pipeline's source action writing to output
	action(scope Scope, output string) map[string]interface{}
	// statements are added to the pipeline role
	statements() []PolicyStatement
	// attach declares resources that need the pipeline itself
	attach(scope Scope, pipelineID string)
}

// RepositorySource identifies the watched repository and branch
type RepositorySource struct {
	Owner  Value
	Repo   Value
	Branch Value
}

func (r RepositorySource) validate() error {
	switch {
	case r.Owner.Empty():
		return fmt.Errorf("%w: source owner", ErrMissingConfig)
	case r.Repo.Empty():
		return fmt.Errorf("%w: source repo", ErrMissingConfig)
	case r.Branch.Empty():
		return fmt.Errorf("%w: source branch", ErrMissingConfig)
	}
	return nil
}

// ConnectionSource watches the repository through a CodeStar connection.
// Push filtering is native, no webhook is needed.
type ConnectionSource struct {
	RepositorySource
	ConnectionArn string
}

// NewConnectionSource creates a connection-based trigger
func NewConnectionSource(repo RepositorySource, connectionArn string) (*ConnectionSource, error) {
	if err := repo.validate(); err != nil {
		return nil, err
	}
	if connectionArn == "" {
		return nil, fmt.Errorf("%w: source connection ARN", ErrMissingConfig)
	}
	return &ConnectionSource{RepositorySource: repo, ConnectionArn: connectionArn}, nil
}

func (s *ConnectionSource) Strategy() string { return model.SourceStrategyConnection }

func (s *ConnectionSource) action(scope Scope, output string) map[string]interface{} {
	return map[string]interface{}{
		"Name": SourceActionName,
		"ActionTypeId": map[string]interface{}{
			"Category": "Source",
			"Owner":    "AWS",
			"Provider": "CodeStarSourceConnection",
			"Version":  "1",
		},
		"Configuration": map[string]interface{}{
			"ConnectionArn":        s.ConnectionArn,
			"FullRepositoryId":     model.Join("/", s.Owner.resolve(scope, "Owner"), s.Repo.resolve(scope, "Repo")),
			"BranchName":           s.Branch.resolve(scope, "Branch"),
			"OutputArtifactFormat": "CODE_ZIP",
			"DetectChanges":        true,
		},
		"OutputArtifacts": []interface{}{map[string]interface{}{"Name": output}},
		"Namespace":       SourceNamespace,
		"RunOrder":        1,
	}
}

func (s *ConnectionSource) statements() []PolicyStatement {
	return []PolicyStatement{{
		Actions:   []string{"codestar-connections:UseConnection"},
		Resources: []interface{}{s.ConnectionArn},
	}}
}

func (s *ConnectionSource) attach(Scope, string) {}

// TokenSource polls nothing: GitHub calls a webhook that is authenticated
// with an HMAC secret and filtered to pushes on the branch. The OAuth token is
// a Secrets Manager dynamic reference and never appears in the template.
type TokenSource struct {
	RepositorySource
	TokenSecret string
}

// NewTokenSource creates a token-based trigger
func NewTokenSource(repo RepositorySource, tokenSecret string) (*TokenSource, error) {
	if err := repo.validate(); err != nil {
		return nil, err
	}
	if tokenSecret == "" {
		return nil, fmt.Errorf("%w: source token secret", ErrMissingConfig)
	}
	return &TokenSource{RepositorySource: repo, TokenSecret: tokenSecret}, nil
}

func (s *TokenSource) Strategy() string { return model.SourceStrategyToken }

func (s *TokenSource) action(scope Scope, output string) map[string]interface{} {
	return map[string]interface{}{
		"Name": SourceActionName,
		"ActionTypeId": map[string]interface{}{
			"Category": "Source",
			"Owner":    "ThirdParty",
			"Provider": "GitHub",
			"Version":  "1",
		},
		"Configuration": map[string]interface{}{
			"Owner":                s.Owner.resolve(scope, "Owner"),
			"Repo":                 s.Repo.resolve(scope, "Repo"),
			"Branch":               s.Branch.resolve(scope, "Branch"),
			"OAuthToken":           model.SecretsManagerRef(s.TokenSecret),
			"PollForSourceChanges": false,
		},
		"OutputArtifacts": []interface{}{map[string]interface{}{"Name": output}},
		"Namespace":       SourceNamespace,
		"RunOrder":        1,
	}
}

func (s *TokenSource) statements() []PolicyStatement { return nil }

func (s *TokenSource) attach(scope Scope, pipelineID string) {
	scope.AddResource("WebhookResource", "AWS::CodePipeline::Webhook", map[string]interface{}{
		"Authentication": "GITHUB_HMAC",
		"AuthenticationConfiguration": map[string]interface{}{
			"SecretToken": model.SecretsManagerRef(s.TokenSecret),
		},
		"Filters": []interface{}{
			map[string]interface{}{"JsonPath": "$.ref", "MatchEquals": "refs/heads/{Branch}"},
		},
		"TargetAction":           SourceActionName,
		"TargetPipeline":         model.Ref(pipelineID),
		"TargetPipelineVersion":  1,
		"RegisterWithThirdParty": true,
	})
}

// NewSourceTrigger selects the trigger strategy from configuration
func NewSourceTrigger(settings model.SourceSettings) (SourceTrigger, error) {
	repo := RepositorySource{
		Owner:  Value(settings.Owner),
		Repo:   Value(settings.Repo),
		Branch: Value(settings.Branch),
	}

	var (
		trigger SourceTrigger
		err     error
	)
	switch settings.Strategy {
	case model.SourceStrategyConnection, "":
		trigger, err = NewConnectionSource(repo, settings.ConnectionArn)
	case model.SourceStrategyToken:
		trigger, err = NewTokenSource(repo, settings.TokenSecret)
	default:
		err = fmt.Errorf("%w: unknown source strategy %q", ErrInvalidProps, settings.Strategy)
	}
	if err != nil {
		return nil, err
	}
	return trigger, nil
}
