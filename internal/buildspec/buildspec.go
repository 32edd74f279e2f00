package buildspec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	Version = "0.2"

	// ManifestFile is the image definitions artifact consumed by the deploy stage
	ManifestFile = "imagedefinitions.json"
)

// Phase names in execution order
const (
	PhaseInstall   = "install"
	PhasePreBuild  = "pre_build"
	PhaseBuild     = "build"
	PhasePostBuild = "post_build"
)

// BuildSpec is a CodeBuild build specification
type BuildSpec struct {
	Version   string    `yaml:"version" json:"version"`
	Phases    Phases    `yaml:"phases" json:"phases"`
	Artifacts Artifacts `yaml:"artifacts" json:"artifacts"`
}

type Phases struct {
	Install   *Phase `yaml:"install,omitempty" json:"install,omitempty"`
	PreBuild  *Phase `yaml:"pre_build,omitempty" json:"pre_build,omitempty"`
	Build     *Phase `yaml:"build,omitempty" json:"build,omitempty"`
	PostBuild *Phase `yaml:"post_build,omitempty" json:"post_build,omitempty"`
}

type Phase struct {
	Commands []string `yaml:"commands" json:"commands"`
}

type Artifacts struct {
	Files []string `yaml:"files" json:"files"`
}

// NamedPhase pairs a phase with its name
type NamedPhase struct {
	Name     string
	Commands []string
}

// Ordered returns the declared phases in execution order
func (b *BuildSpec) Ordered() []NamedPhase {
	phases := make([]NamedPhase, 0, 4)
	for _, p := range []struct {
		name  string
		phase *Phase
	}{
		{PhaseInstall, b.Phases.Install},
		{PhasePreBuild, b.Phases.PreBuild},
		{PhaseBuild, b.Phases.Build},
		{PhasePostBuild, b.Phases.PostBuild},
	} {
		if p.phase == nil || len(p.phase.Commands) == 0 {
			continue
		}
		phases = append(phases, NamedPhase{Name: p.name, Commands: p.phase.Commands})
	}
	return phases
}

// YAML renders the build spec as CodeBuild expects it inline in a project
func (b *BuildSpec) YAML() (string, error) {
	data, err := yaml.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal build spec: %w", err)
	}
	return string(data), nil
}

// Parse reads a build spec document
func Parse(data []byte) (*BuildSpec, error) {
	var spec BuildSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse build spec: %w", err)
	}
	return &spec, nil
}

// Validate checks the shell contract the deploy stage relies on: registry
// login precedes any push, the image tag is derived from a short commit
// hash, and the image definitions manifest is the last thing written and
// declared as the only output artifact.
func (b *BuildSpec) Validate() error {
	if b.Version != Version {
		return fmt.Errorf("unsupported build spec version %q", b.Version)
	}

	var commands []string
	for _, p := range b.Ordered() {
		commands = append(commands, p.Commands...)
	}
	if len(commands) == 0 {
		return fmt.Errorf("build spec has no commands")
	}

	loggedIn := false
	hasCommitTag := false
	pushes := 0
	for i, cmd := range commands {
		switch {
		case strings.Contains(cmd, "docker login"):
			loggedIn = true
		case strings.Contains(cmd, "docker push"):
			if !loggedIn {
				return fmt.Errorf("command %d pushes an image before logging in to the registry", i)
			}
			pushes++
		case strings.Contains(cmd, "COMMIT_HASH=") && strings.Contains(cmd, "cut -c 1-7"):
			hasCommitTag = true
		}
	}

	if !hasCommitTag {
		return fmt.Errorf("build spec does not derive the image tag from a short commit hash")
	}
	if pushes == 0 {
		return fmt.Errorf("build spec never pushes an image")
	}

	last := commands[len(commands)-1]
	if !strings.Contains(last, "> "+ManifestFile) {
		return fmt.Errorf("last command must write %s, got %q", ManifestFile, last)
	}

	if len(b.Artifacts.Files) != 1 || b.Artifacts.Files[0] != ManifestFile {
		return fmt.Errorf("build spec artifacts must be exactly [%s]", ManifestFile)
	}

	return nil
}
