package repo

import (
	"fmt"
	"io"
	"slices"

	"wit/internal/errors"
	"wit/internal/reflog"
	"wit/internal/refs"
	"wit/internal/snapshot"
)

// Log returns the metadata of HEAD and all its ancestors, newest first.
func (r *Repo) Log() ([]*snapshot.Meta, error) {
	set, err := r.loadRefs("showing the log")
	if err != nil {
		return nil, err
	}
	g, err := r.graph()
	if err != nil {
		return nil, err
	}
	if !g.Has(set.Head) {
		return nil, errors.Structural("HEAD "+set.Head+" is missing from the parent log", nil)
	}

	var metas []*snapshot.Meta
	for _, id := range g.History(set.Head) {
		m, err := r.Snapshots.Meta(id)
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
	}
	return metas, nil
}

// Corruption is a snapshot that no longer matches its manifest.
type Corruption struct {
	ID     string
	Damage snapshot.Damage
}

// Verify rehashes every commit in the parent log and returns those whose
// snapshot changed after it was written. A parent log that disagrees with the
// stored snapshots or their metadata is a structural error.
func (r *Repo) Verify() ([]Corruption, error) {
	ids, err := r.Snapshots.List()
	if err != nil {
		return nil, err
	}
	g, err := r.graph()
	if err != nil {
		return nil, err
	}
	if g.Len() != len(ids) {
		return nil, errors.Structural(
			fmt.Sprintf("parent log records %d commits but %d snapshots exist", g.Len(), len(ids)), nil)
	}

	var bad []Corruption
	for _, id := range ids {
		if !g.Has(id) {
			return nil, errors.Structural("snapshot "+id+" is not in the parent log", nil)
		}
		meta, err := r.Snapshots.Meta(id)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(meta.Parents, g.Parents(id)) {
			return nil, errors.Structural("parents of "+id+" disagree between metadata and parent log", nil)
		}

		d, err := r.Snapshots.Verify(id)
		if err != nil {
			return nil, err
		}
		if !d.Empty() {
			bad = append(bad, Corruption{ID: id, Damage: d})
		}
	}
	return bad, nil
}

// Archive writes the snapshot named by indicator to w as a tar.zst stream.
func (r *Repo) Archive(indicator string, w io.Writer) (refs.Target, error) {
	target, err := r.Resolve(indicator)
	if err != nil {
		return refs.Target{}, err
	}
	if err := r.Snapshots.Export(target.ID, w); err != nil {
		return refs.Target{}, err
	}
	return target, nil
}

// ReflogEntries returns the reference journal, newest first.
func (r *Repo) ReflogEntries() ([]reflog.Entry, error) {
	return r.Reflog.List()
}
