// internal/status/status.go
package status

import (
	"fmt"

	"wit/internal/diff"
	"wit/internal/workspace"
)

// Report is the three-way comparison of working tree, staging area and the
// pending list.
type Report struct {
	Head          string   `json:"head"`
	ToBeCommitted []string `json:"to_be_committed"`
	NotStaged     []string `json:"not_staged"`
	Untracked     []string `json:"untracked"`
}

// Clean reports whether nothing is pending and nothing is unstaged. Untracked
// files do not make a tree dirty.
func (r *Report) Clean() bool {
	return len(r.ToBeCommitted) == 0 && len(r.NotStaged) == 0
}

// PendingLister supplies the pending-commit list.
type PendingLister interface {
	Pending() ([]string, error)
}

// Reconciler computes status reports. It never writes.
type Reconciler struct {
	root    string
	staging string
	pending PendingLister
}

func NewReconciler(root, staging string, pending PendingLister) *Reconciler {
	return &Reconciler{root: root, staging: staging, pending: pending}
}

// Status compares the working tree with the staging area for HEAD head.
func (r *Reconciler) Status(head string) (*Report, error) {
	working, err := diff.RelativePaths(r.root, workspace.MetaDir)
	if err != nil {
		return nil, fmt.Errorf("listing working tree: %w", err)
	}
	added, err := diff.RelativePaths(r.staging)
	if err != nil {
		return nil, fmt.Errorf("listing staging area: %w", err)
	}

	notStaged, err := diff.DifferingContent(r.root, r.staging, working.Intersect(added))
	if err != nil {
		return nil, err
	}
	pending, err := r.pending.Pending()
	if err != nil {
		return nil, err
	}

	return &Report{
		Head:          head,
		ToBeCommitted: pending,
		NotStaged:     diff.Sorted(notStaged),
		Untracked:     diff.Sorted(working.Difference(added)),
	}, nil
}
