// internal/workspace/workspace.go
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"wit/internal/config"
	"wit/internal/errors"
	"wit/internal/fsio"
)

const MetaDir = ".wit"

// Layout names every path the engine persists below a repository root.
type Layout struct {
	Root         string
	Meta         string
	Config       string
	References   string
	ActiveBranch string
	Parents      string
	Pending      string
	StagingArea  string
	Images       string
	DB           string
}

func NewLayout(root string) Layout {
	meta := filepath.Join(root, MetaDir)
	return Layout{
		Root:         root,
		Meta:         meta,
		Config:       filepath.Join(meta, "config.toml"),
		References:   filepath.Join(meta, "references.txt"),
		ActiveBranch: filepath.Join(meta, "activated.txt"),
		Parents:      filepath.Join(meta, "parents.txt"),
		Pending:      filepath.Join(meta, "changes_to_be_committed.txt"),
		StagingArea:  filepath.Join(meta, "staging_area"),
		Images:       filepath.Join(meta, "images"),
		DB:           filepath.Join(meta, "db"),
	}
}

// FindRoot searches for the repository root by looking for the ".wit" directory,
// starting at startDir and moving up.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if fsio.IsDir(filepath.Join(dir, MetaDir)) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.RepositoryNotFound(startDir)
}

// Init creates an empty repository in dir. Nesting a repository inside
// another one is refused.
func Init(dir string, cfg *config.Config) (Layout, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("getting absolute path for %s: %w", dir, err)
	}
	if existing, err := FindRoot(abs); err == nil {
		return Layout{}, errors.RepositoryExists(existing)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return Layout{}, err
	}

	l := NewLayout(abs)
	for _, d := range []string{l.Meta, l.Images, l.StagingArea} {
		if err := os.Mkdir(d, 0755); err != nil {
			return Layout{}, fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	if err := os.WriteFile(l.ActiveBranch, []byte(cfg.Core.DefaultBranch), 0644); err != nil {
		return Layout{}, fmt.Errorf("writing active branch marker: %w", err)
	}
	if err := os.WriteFile(l.Pending, nil, 0644); err != nil {
		return Layout{}, fmt.Errorf("creating pending list: %w", err)
	}
	if err := config.Save(l.Config, cfg); err != nil {
		return Layout{}, fmt.Errorf("writing config: %w", err)
	}
	return l, nil
}
