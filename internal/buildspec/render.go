package buildspec

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Options parameterizes the rendered build spec
type Options struct {
	Dockerfile      string
	Context         string
	InstallCommands []string
	// SyncSubmodules clones the source over SSH and updates submodules; the
	// key pair is injected from Secrets Manager as GITHUB_SSH_* variables
	SyncSubmodules bool
}

var submoduleCommands = []string{
	`echo Setting up sources and syncing git submodules...`,
	`mkdir -p ~/.ssh`,
	`echo "$GITHUB_SSH_PRIVATE_KEY" | base64 --decode > ~/.ssh/id_rsa`,
	`echo "$GITHUB_SSH_PUBLIC_KEY" > ~/.ssh/id_rsa.pub`,
	`chmod 600 ~/.ssh/id_rsa`,
	`eval "$(ssh-agent -s)"`,
	`git init`,
	`git remote add origin "$GITHUB_URL"`,
	`git fetch origin`,
	`git checkout -f "$CODEBUILD_RESOLVED_SOURCE_VERSION"`,
	`git submodule init`,
	`git submodule update --recursive`,
}

var preBuildCommands = []string{
	`echo Logging in to Amazon ECR...`,
	`aws ecr get-login-password --region $AWS_REGION | docker login --username AWS --password-stdin $AWS_ACCOUNT_ID.dkr.ecr.$AWS_REGION.amazonaws.com`,
	`COMMIT_HASH=$(echo $CODEBUILD_RESOLVED_SOURCE_VERSION | cut -c 1-7)`,
	`IMAGE_TAG=${COMMIT_HASH:=latest}`,
	`echo Ready to build on commit=$COMMIT_HASH with image=$IMAGE_TAG...`,
}

var buildCommands = []string{
	`echo Build started on $(date)`,
	`docker build -t $REPOSITORY_URI:latest{{ with .Dockerfile }} -f {{ shquote . }}{{ end }} {{ .Context | default "." | shquote }}`,
	`docker tag $REPOSITORY_URI:latest $REPOSITORY_URI:$IMAGE_TAG`,
}

var postBuildCommands = []string{
	`echo Build completed on $(date)`,
	`docker push $REPOSITORY_URI:latest`,
	`docker push $REPOSITORY_URI:$IMAGE_TAG`,
	`printf '[{"name":"%s","imageUri":"%s"}]' "$CONTAINER_NAME" "$REPOSITORY_URI:$IMAGE_TAG" > ` + ManifestFile,
}

// funcs is sprig plus shquote, which single-quotes a word for sh and escapes
// embedded quotes (sprig's squote does not)
var funcs = func() template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm["shquote"] = shellQuote
	return fm
}()

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Renderer renders build specs. Command templates are cached since the same
// command set is rendered for every environment.
type Renderer struct {
	templateCache map[string]*template.Template
}

// NewRenderer creates a new build spec renderer
func NewRenderer() *Renderer {
	return &Renderer{
		templateCache: make(map[string]*template.Template),
	}
}

// Render renders and validates a build spec
func (r *Renderer) Render(opts Options) (*BuildSpec, error) {
	context := map[string]interface{}{
		"Dockerfile": opts.Dockerfile,
		"Context":    opts.Context,
	}

	install := make([]string, 0)
	if opts.SyncSubmodules {
		install = append(install, submoduleCommands...)
	}
	install = append(install, opts.InstallCommands...)

	spec := &BuildSpec{
		Version:   Version,
		Artifacts: Artifacts{Files: []string{ManifestFile}},
	}

	var err error
	if len(install) > 0 {
		if spec.Phases.Install, err = r.renderPhase(PhaseInstall, install, context); err != nil {
			return nil, err
		}
	}
	if spec.Phases.PreBuild, err = r.renderPhase(PhasePreBuild, preBuildCommands, context); err != nil {
		return nil, err
	}
	if spec.Phases.Build, err = r.renderPhase(PhaseBuild, buildCommands, context); err != nil {
		return nil, err
	}
	if spec.Phases.PostBuild, err = r.renderPhase(PhasePostBuild, postBuildCommands, context); err != nil {
		return nil, err
	}

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("rendered build spec is invalid: %w", err)
	}

	return spec, nil
}

func (r *Renderer) renderPhase(phase string, commands []string, context map[string]interface{}) (*Phase, error) {
	rendered := make([]string, 0, len(commands))

	for i, cmd := range commands {
		// Shell lines without template actions are kept verbatim
		if !strings.Contains(cmd, "{{") {
			rendered = append(rendered, cmd)
			continue
		}

		cacheKey := fmt.Sprintf("%s:%s", phase, cmd)
		tmpl, exists := r.templateCache[cacheKey]
		if !exists {
			var err error
			tmpl, err = template.New(cacheKey).Funcs(funcs).Option("missingkey=error").Parse(cmd)
			if err != nil {
				return nil, fmt.Errorf("invalid template in %s command %d: %w", phase, i, err)
			}
			r.templateCache[cacheKey] = tmpl
		}

		var buf strings.Builder
		if err := tmpl.Execute(&buf, context); err != nil {
			return nil, fmt.Errorf("failed to execute template in %s command %d: %w", phase, i, err)
		}
		rendered = append(rendered, buf.String())
	}

	return &Phase{Commands: rendered}, nil
}
