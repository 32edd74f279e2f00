package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/sourceplane/svcstack/internal/buildspec"
	"github.com/sourceplane/svcstack/internal/manifest"
)

// envFileVar names the file shell state is carried in between commands
const envFileVar = "SVCSTACK_ENV_FILE"

// commandWrapper runs one build command the way CodeBuild does: variables
// assigned by earlier commands stay visible to later ones
const commandWrapper = `set -a
. "$` + envFileVar + `"
%s
__svcstack_status=$?
export -p > "$` + envFileVar + `"
exit $__svcstack_status
`

// Runner executes a build spec locally, phase by phase
type Runner struct {
	WorkDir string
	Stdout  io.Writer
	Stderr  io.Writer
	DryRun  bool
	// Env is appended to the process environment of every command
	Env []string
	Log logr.Logger
}

func NewRunner(workDir string, stdout, stderr io.Writer, dryRun bool) *Runner {
	return &Runner{
		WorkDir: workDir,
		Stdout:  stdout,
		Stderr:  stderr,
		DryRun:  dryRun,
		Log:     logr.Discard(),
	}
}

// Run executes every phase in order and stops at the first failing command.
// Failed commands are not retried.
func (r *Runner) Run(spec *buildspec.BuildSpec) error {
	if spec == nil {
		return fmt.Errorf("build spec cannot be nil")
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid build spec: %w", err)
	}

	envFile, err := os.CreateTemp("", "svcstack-env-*")
	if err != nil {
		return fmt.Errorf("failed to create environment file: %w", err)
	}
	envFile.Close()
	defer os.Remove(envFile.Name())

	for _, phase := range spec.Ordered() {
		fmt.Fprintf(r.Stdout, "→ Phase %s\n", phase.Name)
		for i, command := range phase.Commands {
			if r.DryRun {
				fmt.Fprintf(r.Stdout, "    %s\n", command)
				continue
			}

			r.Log.V(1).Info("running command", "phase", phase.Name, "index", i)
			cmd := exec.Command("sh", "-c", fmt.Sprintf(commandWrapper, command))
			cmd.Dir = r.WorkDir
			cmd.Env = append(append(os.Environ(), r.Env...), envFileVar+"="+envFile.Name())
			cmd.Stdout = r.Stdout
			cmd.Stderr = r.Stderr

			if err := cmd.Run(); err != nil {
				return fmt.Errorf("phase %s command %d failed: %w", phase.Name, i+1, err)
			}
		}
	}

	return nil
}

// ValidateOutput checks the image definitions the build wrote for the
// declared containers
func (r *Runner) ValidateOutput(containers ...string) error {
	path := filepath.Join(r.WorkDir, buildspec.ManifestFile)
	defs, err := manifest.ReadFile(path)
	if err != nil {
		return err
	}
	if err := defs.Validate(containers...); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
