// Package refs persists HEAD, branch pointers and the active-branch marker.
// It is the only mutable pointer state in a repository.
package refs

import (
	"fmt"
	"os"
	"strings"

	"wit/internal/errors"
	"wit/internal/fsio"
	"wit/internal/validation"
)

const headName = "HEAD"

type Branch struct {
	Name string
	ID   string
}

// Set is the full reference set, loaded at command start and written back
// whole at command end.
type Set struct {
	Head     string
	Branches []Branch
	// Active is the checked-out branch name; empty when HEAD is detached.
	Active string
}

// HasCommit reports whether any commit has been recorded.
func (s *Set) HasCommit() bool {
	return s.Head != ""
}

func (s *Set) BranchCommit(name string) (string, bool) {
	for _, b := range s.Branches {
		if b.Name == name {
			return b.ID, true
		}
	}
	return "", false
}

func (s *Set) setBranch(name, id string) {
	for i := range s.Branches {
		if s.Branches[i].Name == name {
			s.Branches[i].ID = id
			return
		}
	}
	s.Branches = append(s.Branches, Branch{Name: name, ID: id})
}

// CreateBranch points a new branch at HEAD.
func (s *Set) CreateBranch(name string) error {
	if err := validation.BranchName(name); err != nil {
		return err
	}
	if !s.HasCommit() {
		return errors.CommitRequired("adding a branch name")
	}
	if _, ok := s.BranchCommit(name); ok {
		return errors.BranchExists(name)
	}
	s.Branches = append(s.Branches, Branch{Name: name, ID: s.Head})
	return nil
}

// Advance moves HEAD to id. The active branch follows when it pointed at the
// old HEAD. The very first advance also creates defaultBranch.
func (s *Set) Advance(id, defaultBranch string) {
	if !s.HasCommit() {
		s.Head = id
		s.setBranch(defaultBranch, id)
		return
	}
	if s.Active != "" {
		if branchID, ok := s.BranchCommit(s.Active); ok && branchID == s.Head {
			s.setBranch(s.Active, id)
		}
	}
	s.Head = id
}

// MoveActive sets HEAD and, if one is active and known, the active branch to id.
func (s *Set) MoveActive(id string) {
	s.Head = id
	if s.Active == "" {
		return
	}
	if _, ok := s.BranchCommit(s.Active); ok {
		s.setBranch(s.Active, id)
	}
}

func (s *Set) encode() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s\n", headName, s.Head)
	for _, br := range s.Branches {
		fmt.Fprintf(&b, "%s=%s\n", br.Name, br.ID)
	}
	return []byte(b.String())
}

// Store reads and writes a Set from the references file and the
// active-branch marker.
type Store struct {
	refsPath   string
	activePath string
}

func NewStore(refsPath, activePath string) *Store {
	return &Store{refsPath: refsPath, activePath: activePath}
}

// Load reads the reference set. A missing references file is not an error:
// it yields a Set without a HEAD, meaning no commit exists yet.
func (st *Store) Load() (*Set, error) {
	set := &Set{}

	active, err := os.ReadFile(st.activePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading active branch marker: %w", err)
	}
	set.Active = strings.TrimSpace(string(active))

	lines, err := fsio.ReadLines(st.refsPath)
	if err != nil {
		return nil, fmt.Errorf("reading references: %w", err)
	}
	if len(lines) == 0 {
		return set, nil
	}

	for i, line := range lines {
		name, id, ok := strings.Cut(line, "=")
		if !ok || name == "" || id == "" {
			return nil, errors.Structural(fmt.Sprintf("corrupt references file: line %d %q", i+1, line), nil)
		}
		if i == 0 {
			if name != headName {
				return nil, errors.Structural("corrupt references file: first line must be HEAD", nil)
			}
			set.Head = id
			continue
		}
		set.Branches = append(set.Branches, Branch{Name: name, ID: id})
	}
	return set, nil
}

// Save rewrites the references file and the active-branch marker, each in a
// single atomic replace.
func (st *Store) Save(set *Set) error {
	if set.HasCommit() {
		if err := fsio.WriteAtomic(st.refsPath, set.encode(), 0644); err != nil {
			return fmt.Errorf("writing references: %w", err)
		}
	}
	if err := fsio.WriteAtomic(st.activePath, []byte(set.Active), 0644); err != nil {
		return fmt.Errorf("writing active branch marker: %w", err)
	}
	return nil
}
