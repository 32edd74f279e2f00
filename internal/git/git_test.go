package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnyUnder(t *testing.T) {
	files := []string{"service/Dockerfile", "docs/README.md"}

	tests := []struct {
		name  string
		paths []string
		want  bool
	}{
		{"exact file", []string{"docs/README.md"}, true},
		{"directory", []string{"service"}, true},
		{"trailing slash", []string{"service/"}, true},
		{"prefix is not a directory", []string{"serv"}, false},
		{"root", []string{"."}, true},
		{"unrelated", []string{"infra"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, anyUnder(files, tt.paths))
		})
	}
	assert.False(t, anyUnder(nil, []string{"."}))
}

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	gitCmd := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	gitCmd("init", "-q", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("bar\n"), 0o644))
	gitCmd("add", ".")
	gitCmd("commit", "-q", "-m", "initial")
	gitCmd("checkout", "-q", "-b", "feature")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "service"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "service", "Dockerfile"), []byte("FROM scratch\n"), 0o644))
	gitCmd("add", ".")
	gitCmd("commit", "-q", "-m", "service")
	return dir
}

func TestHeadRevisionAndChanges(t *testing.T) {
	dir := initRepo(t)

	rev, err := HeadRevision(dir)
	require.NoError(t, err)
	assert.Len(t, rev, 40)

	cd := NewChangeDetector(dir, "main")
	files, err := cd.ChangedFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"service/Dockerfile"}, files)

	changed, err := cd.ChangedUnder("service")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = cd.ChangedUnder("docs")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = NewChangeDetector(dir, "develop").ChangedFiles()
	assert.Error(t, err)
}

func TestHeadRevisionOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := HeadRevision(t.TempDir())
	assert.Error(t, err)
}
