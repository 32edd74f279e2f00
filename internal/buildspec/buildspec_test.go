package buildspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefaults(t *testing.T) {
	spec, err := NewRenderer().Render(Options{})
	require.NoError(t, err)

	assert.Equal(t, Version, spec.Version)
	assert.Nil(t, spec.Phases.Install)
	assert.Equal(t, []string{ManifestFile}, spec.Artifacts.Files)
	assert.Contains(t, spec.Phases.Build.Commands, `docker build -t $REPOSITORY_URI:latest '.'`)

	names := make([]string, 0)
	for _, p := range spec.Ordered() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{PhasePreBuild, PhaseBuild, PhasePostBuild}, names)

	post := spec.Phases.PostBuild.Commands
	assert.True(t, strings.HasSuffix(post[len(post)-1], "> "+ManifestFile))
}

func TestRenderWithOptions(t *testing.T) {
	spec, err := NewRenderer().Render(Options{
		Dockerfile:      "deploy/Dockerfile",
		Context:         "server",
		SyncSubmodules:  true,
		InstallCommands: []string{"echo context={{ .Context }}"},
	})
	require.NoError(t, err)

	require.NotNil(t, spec.Phases.Install)
	install := spec.Phases.Install.Commands
	assert.Equal(t, `git submodule update --recursive`, install[len(install)-2])
	assert.Equal(t, "echo context=server", install[len(install)-1])
	assert.Contains(t, spec.Phases.Build.Commands, `docker build -t $REPOSITORY_URI:latest -f 'deploy/Dockerfile' 'server'`)
}

func TestRenderQuotesBuildPaths(t *testing.T) {
	spec, err := NewRenderer().Render(Options{Dockerfile: "it's/Dockerfile", Context: "a'; rm -rf /; echo '"})
	require.NoError(t, err)
	assert.Contains(t, spec.Phases.Build.Commands,
		`docker build -t $REPOSITORY_URI:latest -f 'it'\''s/Dockerfile' 'a'\''; rm -rf /; echo '\'''`)

	spec, err = NewRenderer().Render(Options{})
	require.NoError(t, err)
	assert.Contains(t, spec.Phases.Build.Commands, `docker build -t $REPOSITORY_URI:latest '.'`)
}

func TestRenderRejectsBrokenInstallTemplate(t *testing.T) {
	_, err := NewRenderer().Render(Options{InstallCommands: []string{"echo {{ .Missing }}"}})
	require.Error(t, err)

	_, err = NewRenderer().Render(Options{InstallCommands: []string{"echo {{ .Context "}})
	require.Error(t, err)
}

func TestLoginPrecedesPush(t *testing.T) {
	spec, err := NewRenderer().Render(Options{})
	require.NoError(t, err)

	login, firstPush := -1, -1
	i := 0
	for _, p := range spec.Ordered() {
		for _, cmd := range p.Commands {
			if login < 0 && strings.Contains(cmd, "docker login") {
				login = i
			}
			if firstPush < 0 && strings.Contains(cmd, "docker push") {
				firstPush = i
			}
			i++
		}
	}
	require.GreaterOrEqual(t, login, 0)
	assert.Less(t, login, firstPush)
}

func TestValidate(t *testing.T) {
	valid := func() *BuildSpec {
		return &BuildSpec{
			Version: Version,
			Phases: Phases{
				PreBuild: &Phase{Commands: []string{
					"aws ecr get-login-password | docker login --password-stdin x",
					"COMMIT_HASH=$(echo $V | cut -c 1-7)",
				}},
				PostBuild: &Phase{Commands: []string{
					"docker push $REPOSITORY_URI:latest",
					"printf '[]' > " + ManifestFile,
				}},
			},
			Artifacts: Artifacts{Files: []string{ManifestFile}},
		}
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(*BuildSpec){
		"push before login": func(b *BuildSpec) {
			b.Phases.Install = &Phase{Commands: []string{"docker push early"}}
		},
		"no commit tag": func(b *BuildSpec) {
			b.Phases.PreBuild.Commands = b.Phases.PreBuild.Commands[:1]
		},
		"manifest not last": func(b *BuildSpec) {
			b.Phases.PostBuild.Commands = append(b.Phases.PostBuild.Commands, "echo done")
		},
		"wrong artifacts": func(b *BuildSpec) {
			b.Artifacts.Files = []string{"out.zip"}
		},
		"wrong version": func(b *BuildSpec) {
			b.Version = "0.1"
		},
		"no push": func(b *BuildSpec) {
			b.Phases.PostBuild.Commands = b.Phases.PostBuild.Commands[1:]
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			spec := valid()
			mutate(spec)
			assert.Error(t, spec.Validate())
		})
	}
}

func TestYAMLParsesBack(t *testing.T) {
	spec, err := NewRenderer().Render(Options{SyncSubmodules: true})
	require.NoError(t, err)

	text, err := spec.YAML()
	require.NoError(t, err)
	assert.Contains(t, text, "pre_build:")

	parsed, err := Parse([]byte(text))
	require.NoError(t, err)
	assert.Equal(t, spec, parsed)
	require.NoError(t, parsed.Validate())
}
