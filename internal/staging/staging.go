// internal/staging/staging.go
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wit/internal/errors"
	"wit/internal/fsio"
	"wit/internal/workspace"
)

// Area is the staging mirror plus the pending-commit list.
type Area struct {
	root    string // repository root
	dir     string
	pending string
}

func New(l workspace.Layout) *Area {
	return &Area{root: l.Root, dir: l.StagingArea, pending: l.Pending}
}

func (a *Area) Dir() string {
	return a.dir
}

// Add copies the file or directory at path into the staging area at the
// same position relative to the repository root, and records it as pending.
// It returns the recorded relative path.
func (a *Area) Add(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("getting absolute path for %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound(fmt.Sprintf("the path %q does not exist", abs))
		}
		return "", err
	}

	rel, err := filepath.Rel(a.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.ValidationError(fmt.Sprintf("%s is outside the repository", abs), nil)
	}
	rel = filepath.ToSlash(rel)
	if rel == workspace.MetaDir || strings.HasPrefix(rel, workspace.MetaDir+"/") {
		return "", errors.ValidationError("cannot stage the repository metadata directory", rel)
	}

	if info.IsDir() {
		dst := a.dir
		if rel != "." {
			dst = filepath.Join(a.dir, filepath.FromSlash(rel))
		}
		if err := fsio.CopyTree(abs, dst, workspace.MetaDir); err != nil {
			return "", fmt.Errorf("staging directory %s: %w", rel, err)
		}
	} else {
		if err := fsio.CopyFile(abs, filepath.Join(a.dir, filepath.FromSlash(rel))); err != nil {
			return "", fmt.Errorf("staging file %s: %w", rel, err)
		}
	}

	if err := fsio.AppendLine(a.pending, rel); err != nil {
		return "", fmt.Errorf("recording pending change: %w", err)
	}
	return rel, nil
}

// Pending returns the paths staged since the last commit, in staging order.
func (a *Area) Pending() ([]string, error) {
	lines, err := fsio.ReadLines(a.pending)
	if err != nil {
		return nil, fmt.Errorf("reading pending list: %w", err)
	}
	return lines, nil
}

// ClearPending truncates the pending list.
func (a *Area) ClearPending() error {
	return os.WriteFile(a.pending, nil, 0644)
}

// ReplaceWith makes the staging area an exact copy of dir.
func (a *Area) ReplaceWith(dir string) error {
	return fsio.ReplaceTree(dir, a.dir)
}
