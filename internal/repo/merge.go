package repo

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"wit/internal/diff"
	"wit/internal/errors"
	"wit/internal/fsio"
	"wit/internal/reflog"
	"wit/internal/refs"
	"wit/internal/snapshot"
)

// MergeResult describes a completed merge.
type MergeResult struct {
	Commit string
	Head   string
	Other  refs.Target
	Base   string
	// Staged lists the files taken from the incoming side.
	Staged []string
	// Overwritten lists files changed on both sides since the base; the
	// incoming content replaced ours.
	Overwritten []string
	// NotPropagated lists files removed on the incoming side that are still
	// present here. Removals are never merged.
	NotPropagated []string
	Message       string
}

// Merge brings the changes made on the indicated line of history since the
// merge base into the current one and records a two-parent commit.
//
// The staging area must match the HEAD snapshot exactly, the working tree
// must have no unstaged changes, and no incoming file may land on an
// untracked one; otherwise nothing is written. Incoming files win every
// conflict with HEAD.
func (r *Repo) Merge(indicator string) (*MergeResult, error) {
	set, err := r.loadRefs("merging")
	if err != nil {
		return nil, err
	}
	other, err := refs.Resolve(set, indicator, r.Snapshots)
	if err != nil {
		return nil, err
	}
	g, err := r.graph()
	if err != nil {
		return nil, err
	}
	base, err := g.MergeBase(set.Head, other.ID)
	if err != nil {
		return nil, err
	}

	headDir := r.Snapshots.Dir(set.Head)
	otherDir := r.Snapshots.Dir(other.ID)
	baseDir := r.Snapshots.Dir(base)

	report, err := r.Reconciler.Status(set.Head)
	if err != nil {
		return nil, err
	}
	same, err := diff.Equal(headDir, r.Staging.Dir())
	if err != nil {
		return nil, err
	}
	if !same {
		return nil, errors.ImpossibleMerge(
			"the staging area differs from HEAD; commit your changes or run `wit checkout HEAD`", report)
	}
	if len(report.NotStaged) > 0 {
		return nil, errors.ImpossibleMerge("there are changes not staged for commit", report)
	}

	added, changed, err := diff.ChangedBetween(baseDir, otherDir)
	if err != nil {
		return nil, err
	}
	incoming := added.Union(changed)

	if clobbered := incoming.Intersect(diff.NewPaths(report.Untracked...)); clobbered.Cardinality() > 0 {
		return nil, errors.ImpossibleMerge(
			"untracked files would be overwritten: "+strings.Join(diff.Sorted(clobbered), ", "), report)
	}

	overwritten, err := r.overwritten(baseDir, headDir, otherDir, incoming)
	if err != nil {
		return nil, err
	}
	removed, err := diff.RemovedBetween(baseDir, otherDir)
	if err != nil {
		return nil, err
	}
	headFiles, err := diff.RelativePaths(headDir)
	if err != nil {
		return nil, err
	}

	staged := diff.Sorted(incoming)
	for _, rel := range staged {
		if err := fsio.CopyFile(diff.Join(otherDir, rel), diff.Join(r.Staging.Dir(), rel)); err != nil {
			return nil, fmt.Errorf("staging %s: %w", rel, err)
		}
	}

	id := snapshot.NewID()
	message := mergeMessage(set.Head, other)
	if err := r.writeCommit(id, []string{set.Head, other.ID}, message); err != nil {
		return nil, err
	}

	for _, rel := range staged {
		if err := fsio.CopyFile(diff.Join(otherDir, rel), diff.Join(r.Layout.Root, rel)); err != nil {
			return nil, fmt.Errorf("updating working tree %s: %w", rel, err)
		}
	}

	head := set.Head
	set.MoveActive(id)
	if err := r.Refs.Save(set); err != nil {
		return nil, err
	}
	if err := r.Staging.ClearPending(); err != nil {
		return nil, fmt.Errorf("clearing pending list: %w", err)
	}

	res := &MergeResult{
		Commit:        id,
		Head:          head,
		Other:         other,
		Base:          base,
		Staged:        staged,
		Overwritten:   diff.Sorted(overwritten),
		NotPropagated: diff.Sorted(removed.Intersect(headFiles)),
		Message:       message,
	}

	r.record(reflog.Entry{Op: reflog.OpMerge, Old: head, New: id, Branch: set.Active, Message: message})
	for _, p := range res.Overwritten {
		r.Logger.Warn("merge overwrote local change", zap.String("path", p), zap.String("from", other.ID))
	}
	r.Logger.Info("merge committed",
		zap.String("id", id),
		zap.String("base", base),
		zap.Int("staged", len(staged)))
	return res, nil
}

// overwritten returns the incoming paths that HEAD also changed since the
// base and whose content differs between the two sides.
func (r *Repo) overwritten(baseDir, headDir, otherDir string, incoming diff.Paths) (diff.Paths, error) {
	ourAdded, ourChanged, err := diff.ChangedBetween(baseDir, headDir)
	if err != nil {
		return nil, err
	}
	both := incoming.Intersect(ourAdded.Union(ourChanged))
	return diff.DifferingContent(headDir, otherDir, both)
}

// mergeMessage names both sides by 6-character id, plus the branch when the
// incoming side was given by name.
func mergeMessage(head string, other refs.Target) string {
	with := short(other.ID)
	if other.Kind == refs.KindBranch {
		with = fmt.Sprintf("%s (%s)", with, other.Branch)
	}
	return fmt.Sprintf("Merged %s (HEAD) with %s.", short(head), with)
}

func short(id string) string {
	if len(id) > refs.MinPrefix {
		return id[:refs.MinPrefix]
	}
	return id
}
