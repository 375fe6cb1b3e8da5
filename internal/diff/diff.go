// internal/diff/diff.go
package diff

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"wit/internal/fsio"
)

// Paths is a set of slash-separated paths relative to a tree root.
type Paths = mapset.Set[string]

// NewPaths returns a set holding the given paths.
func NewPaths(paths ...string) Paths {
	return mapset.NewThreadUnsafeSet(paths...)
}

// RelativePaths enumerates every regular file below root as a slash-separated
// path relative to root. Top-level entries named in exclude are skipped, which
// is how the working tree hides the metadata directory. The same
// normalization applies to the working tree, the staging area and snapshots,
// so paths from any two of them are comparable.
func RelativePaths(root string, exclude ...string) (Paths, error) {
	paths := NewPaths()
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if excluded(rel, exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !excluded(rel, exclude) {
			paths.Add(rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", root, err)
	}
	return paths, nil
}

func excluded(rel string, exclude []string) bool {
	for _, e := range exclude {
		if rel == e {
			return true
		}
	}
	return false
}

// DifferingContent compares each candidate under both roots byte for byte and
// returns the candidates whose content differs. Every candidate must exist
// under both roots; callers intersect path sets first.
func DifferingContent(dirA, dirB string, candidates Paths) (Paths, error) {
	differ := NewPaths()
	for _, rel := range Sorted(candidates) {
		same, err := fsio.SameContent(Join(dirA, rel), Join(dirB, rel))
		if err != nil {
			return nil, fmt.Errorf("comparing %s: %w", rel, err)
		}
		if !same {
			differ.Add(rel)
		}
	}
	return differ, nil
}

// ChangedBetween returns the files added in until relative to since, and the
// files present in both whose content changed. Removals are not reported; see
// RemovedBetween.
func ChangedBetween(since, until string) (added, changed Paths, err error) {
	sinceFiles, err := RelativePaths(since)
	if err != nil {
		return nil, nil, err
	}
	untilFiles, err := RelativePaths(until)
	if err != nil {
		return nil, nil, err
	}

	added = untilFiles.Difference(sinceFiles)
	changed, err = DifferingContent(since, until, untilFiles.Intersect(sinceFiles))
	if err != nil {
		return nil, nil, err
	}
	return added, changed, nil
}

// RemovedBetween returns the files present in since but missing from until.
func RemovedBetween(since, until string) (Paths, error) {
	sinceFiles, err := RelativePaths(since)
	if err != nil {
		return nil, err
	}
	untilFiles, err := RelativePaths(until)
	if err != nil {
		return nil, err
	}
	return sinceFiles.Difference(untilFiles), nil
}

// Equal reports whether two trees hold the same path set with identical content.
func Equal(dirA, dirB string) (bool, error) {
	a, err := RelativePaths(dirA)
	if err != nil {
		return false, err
	}
	b, err := RelativePaths(dirB)
	if err != nil {
		return false, err
	}
	if !a.Equal(b) {
		return false, nil
	}
	differ, err := DifferingContent(dirA, dirB, a)
	if err != nil {
		return false, err
	}
	return differ.Cardinality() == 0, nil
}

// Join resolves a slash-separated relative path below root.
func Join(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(path.Clean(rel)))
}

// Sorted returns the members of paths in lexical order.
func Sorted(paths Paths) []string {
	if paths == nil {
		return nil
	}
	out := paths.ToSlice()
	sort.Strings(out)
	return out
}
