package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// run executes git in dir and returns trimmed stdout
func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// HeadRevision returns the full commit hash checked out in dir
func HeadRevision(dir string) (string, error) {
	rev, err := run(dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if rev == "" {
		return "", fmt.Errorf("git rev-parse HEAD returned no revision")
	}
	return rev, nil
}

// ChangeDetector detects files that changed relative to a base branch
type ChangeDetector struct {
	dir        string
	baseBranch string
}

// NewChangeDetector creates a change detector for the repository in dir
func NewChangeDetector(dir, baseBranch string) *ChangeDetector {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &ChangeDetector{dir: dir, baseBranch: baseBranch}
}

// ChangedFiles returns the union of unstaged, staged and committed changes
// not yet in the base branch, sorted
func (cd *ChangeDetector) ChangedFiles() ([]string, error) {
	files := make(map[string]bool)
	collect := func(out string) {
		for _, f := range strings.Split(out, "\n") {
			if f != "" {
				files[f] = true
			}
		}
	}

	// Local changes; failures here mean there is nothing to diff
	if out, err := run(cd.dir, "diff", "--name-only"); err == nil {
		collect(out)
	}
	if out, err := run(cd.dir, "diff", "--cached", "--name-only"); err == nil {
		collect(out)
	}

	base, err := cd.mergeBase()
	if err != nil {
		return nil, err
	}
	out, err := run(cd.dir, "diff", "--name-only", base)
	if err != nil {
		return nil, err
	}
	collect(out)

	result := make([]string, 0, len(files))
	for f := range files {
		result = append(result, f)
	}
	sort.Strings(result)
	return result, nil
}

// mergeBase finds the fork point of HEAD, trying the remote branch when the
// base branch does not exist locally (common in CI)
func (cd *ChangeDetector) mergeBase() (string, error) {
	for _, ref := range []string{cd.baseBranch, "origin/" + cd.baseBranch} {
		if base, err := run(cd.dir, "merge-base", "HEAD", ref); err == nil && base != "" {
			return base, nil
		}
	}
	return "", fmt.Errorf("no merge base between HEAD and %s", cd.baseBranch)
}

// ChangedUnder reports whether any changed file is path or lies below it
func (cd *ChangeDetector) ChangedUnder(paths ...string) (bool, error) {
	files, err := cd.ChangedFiles()
	if err != nil {
		return false, err
	}
	return anyUnder(files, paths), nil
}

func anyUnder(files, paths []string) bool {
	for _, path := range paths {
		path = strings.TrimSuffix(filepath.ToSlash(filepath.Clean(path)), "/")
		if path == "." || path == "" {
			if len(files) > 0 {
				return true
			}
			continue
		}
		for _, f := range files {
			if f == path || strings.HasPrefix(f, path+"/") {
				return true
			}
		}
	}
	return false
}
