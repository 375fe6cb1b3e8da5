package repo

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"wit/internal/diff"
	"wit/internal/errors"
	"wit/internal/fsio"
	"wit/internal/reflog"
	"wit/internal/refs"
	"wit/internal/status"
	"wit/internal/workspace"
)

// Status reports staged, unstaged and untracked changes.
func (r *Repo) Status() (*status.Report, error) {
	set, err := r.loadRefs("checking status")
	if err != nil {
		return nil, err
	}
	return r.Reconciler.Status(set.Head)
}

// Checkout replaces the working tree and staging area with the snapshot the
// indicator names. It is refused while anything is pending or unstaged; the
// returned error then carries the status report. Untracked files are kept.
//
// Steps run in order: remove tracked files, copy the snapshot into the
// working tree, replace the staging area, set the active-branch marker,
// then move HEAD. HEAD moves last because Advance reads the marker.
func (r *Repo) Checkout(indicator string) (refs.Target, error) {
	set, err := r.loadRefs("checkout")
	if err != nil {
		return refs.Target{}, err
	}
	target, err := refs.Resolve(set, indicator, r.Snapshots)
	if err != nil {
		return refs.Target{}, err
	}

	report, err := r.Reconciler.Status(set.Head)
	if err != nil {
		return refs.Target{}, err
	}
	if !report.Clean() {
		return refs.Target{}, errors.ImpossibleCheckout(report)
	}

	if err := r.removeTracked(report); err != nil {
		return refs.Target{}, fmt.Errorf("clearing working tree: %w", err)
	}
	src := r.Snapshots.Dir(target.ID)
	if err := fsio.CopyTree(src, r.Layout.Root); err != nil {
		return refs.Target{}, fmt.Errorf("restoring snapshot %s: %w", target.ID, err)
	}
	if err := r.Staging.ReplaceWith(src); err != nil {
		return refs.Target{}, fmt.Errorf("replacing staging area: %w", err)
	}

	old := set.Head
	set.Active = target.Branch
	set.Advance(target.ID, r.defaultBranch(set))
	if err := r.Refs.Save(set); err != nil {
		return refs.Target{}, err
	}

	r.record(reflog.Entry{Op: reflog.OpCheckout, Old: old, New: target.ID, Branch: set.Active, Message: "checkout " + indicator})
	r.Logger.Info("checked out",
		zap.String("indicator", indicator),
		zap.String("id", target.ID),
		zap.Stringer("kind", target.Kind))
	return target, nil
}

// removeTracked deletes every working-tree file that is not untracked, then
// prunes the directories that removal left empty. Removal keeps going past
// failures.
func (r *Repo) removeTracked(report *status.Report) error {
	files, err := diff.RelativePaths(r.Layout.Root, workspace.MetaDir)
	if err != nil {
		return err
	}
	tracked := files.Difference(diff.NewPaths(report.Untracked...))

	removed := diff.Sorted(tracked)
	var result error
	for _, rel := range removed {
		if err := os.Remove(diff.Join(r.Layout.Root, rel)); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		return result
	}
	return fsio.PruneEmptyParents(r.Layout.Root, removed)
}

// Branch points a new branch at HEAD.
func (r *Repo) Branch(name string) error {
	set, err := r.Refs.Load()
	if err != nil {
		return err
	}
	if err := set.CreateBranch(name); err != nil {
		return err
	}
	if err := r.Refs.Save(set); err != nil {
		return err
	}
	r.record(reflog.Entry{Op: reflog.OpBranch, New: set.Head, Branch: name, Message: "branch " + name})
	r.Logger.Info("branch created", zap.String("name", name), zap.String("id", set.Head))
	return nil
}
