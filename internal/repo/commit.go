package repo

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"wit/internal/graph"
	"wit/internal/reflog"
	"wit/internal/snapshot"
	"wit/internal/validation"
)

// Add stages each path and returns the recorded relative paths.
func (r *Repo) Add(paths ...string) ([]string, error) {
	var staged []string
	for _, p := range paths {
		rel, err := r.Staging.Add(p)
		if err != nil {
			return staged, err
		}
		r.Logger.Debug("staged path", zap.String("path", rel))
		staged = append(staged, rel)
	}
	return staged, nil
}

// Commit snapshots the staging area and advances HEAD. The working tree is
// not read.
func (r *Repo) Commit(message string) (string, error) {
	if err := validation.CommitMessage(message); err != nil {
		return "", err
	}
	set, err := r.Refs.Load()
	if err != nil {
		return "", err
	}

	var parents []string
	if set.HasCommit() {
		parents = []string{set.Head}
	}

	id := snapshot.NewID()
	if err := r.writeCommit(id, parents, message); err != nil {
		return "", err
	}

	old := set.Head
	set.Advance(id, r.defaultBranch(set))
	if err := r.Refs.Save(set); err != nil {
		return "", err
	}
	if err := r.Staging.ClearPending(); err != nil {
		return "", fmt.Errorf("clearing pending list: %w", err)
	}

	r.record(reflog.Entry{Op: reflog.OpCommit, Old: old, New: id, Branch: set.Active, Message: message})
	r.Logger.Info("commit created", zap.String("id", id), zap.Strings("parents", parents))
	return id, nil
}

// writeCommit creates the snapshot of the staging area and appends it to the
// parent log. References are left to the caller.
func (r *Repo) writeCommit(id string, parents []string, message string) error {
	meta := snapshot.Meta{ID: id, Parents: parents, Time: time.Now(), Message: message}
	if err := r.Snapshots.Create(meta, r.Staging.Dir()); err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	if err := graph.AppendLog(r.Layout.Parents, id, parents...); err != nil {
		return fmt.Errorf("appending to parent log: %w", err)
	}
	return nil
}
