// Package reflog journals every movement of HEAD and branch pointers.
// Entries are informational; no operation reads them to decide anything.
package reflog

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"wit/internal/storage"
)

type Op string

const (
	OpCommit   Op = "commit"
	OpCheckout Op = "checkout"
	OpMerge    Op = "merge"
	OpBranch   Op = "branch"
)

type Entry struct {
	Seq     string    `json:"seq"`
	Op      Op        `json:"op"`
	Old     string    `json:"old"`
	New     string    `json:"new"`
	Branch  string    `json:"branch,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

func (e *Entry) GetID() string {
	return e.Seq
}

type Store struct {
	store *storage.BadgerStore
	now   func() time.Time
	last  int64
}

func NewStore(db *badger.DB) *Store {
	return &Store{
		store: storage.NewBadgerStore(db, "reflog"),
		now:   time.Now,
	}
}

// Record appends e, stamping its time and sequence key. The key is the
// zero-padded nanosecond clock, bumped past the previous key, so key order
// is record order.
func (s *Store) Record(e Entry) error {
	e.Time = s.now()
	seq := e.Time.UnixNano()
	if seq <= s.last {
		seq = s.last + 1
	}
	s.last = seq
	e.Seq = fmt.Sprintf("%020d", seq)
	if err := s.store.Create(&e); err != nil {
		return fmt.Errorf("recording %s: %w", e.Op, err)
	}
	return nil
}

// List returns all entries, newest first.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	if err := s.store.List(&entries); err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
