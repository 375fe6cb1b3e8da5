// internal/snapshot/snapshot.go
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"wit/internal/errors"
	"wit/internal/fsio"
)

// DateLayout renders commit timestamps, e.g. "Fri Jan 29 04:35:12 2021 +02:00".
const DateLayout = "Mon Jan _2 15:04:05 2006 -07:00"

var idPattern = regexp.MustCompile(`^[0-9a-f]+$`)

// Meta is the metadata record written next to every snapshot.
type Meta struct {
	ID      string
	Parents []string
	Time    time.Time
	Message string
}

// Store creates and reads immutable snapshots under the images directory.
// A snapshot is never modified after Create returns.
type Store struct {
	root      string
	manifests *lru.Cache[string, Manifest]
}

// Options configures Store behavior
type Options struct {
	Root      string // images directory
	CacheSize int    // number of manifests to cache
}

func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}

	cache, err := lru.New[string, Manifest](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Store{root: opts.Root, manifests: cache}, nil
}

// NewID returns a fresh random commit identifier. Identifiers are not derived
// from content, so identical trees committed twice get different ids.
func NewID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

// Dir is the directory holding snapshot id.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.root, id+".txt")
}

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.root, id+".manifest")
}

func validID(id string) bool {
	return idPattern.MatchString(id)
}

// Exists reports whether a snapshot is stored under id.
func (s *Store) Exists(id string) bool {
	return validID(id) && fsio.IsDir(s.Dir(id))
}

// Create copies from into a new snapshot and records meta. It fails if a
// snapshot with the same id already exists.
func (s *Store) Create(meta Meta, from string) error {
	if !validID(meta.ID) {
		return fmt.Errorf("invalid commit id %q", meta.ID)
	}
	dir := s.Dir(meta.ID)
	if err := os.Mkdir(dir, 0755); err != nil {
		if os.IsExist(err) {
			return errors.AlreadyExists(fmt.Sprintf("snapshot %s already exists", meta.ID))
		}
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := fsio.CopyTree(from, dir); err != nil {
		return fmt.Errorf("copying %s into snapshot: %w", from, err)
	}

	manifest, err := BuildManifest(dir)
	if err != nil {
		return err
	}
	if err := fsio.WriteAtomic(s.manifestPath(meta.ID), manifest.encode(), 0444); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	s.manifests.Add(meta.ID, manifest)

	if meta.Time.IsZero() {
		meta.Time = time.Now()
	}
	if err := fsio.WriteAtomic(s.metaPath(meta.ID), encodeMeta(meta), 0444); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func encodeMeta(m Meta) []byte {
	return []byte(fmt.Sprintf("parent=%s\ndate=%s\nmessage=%s",
		strings.Join(m.Parents, ", "), m.Time.Format(DateLayout), m.Message))
}

// Meta reads the metadata record of id.
func (s *Store) Meta(id string) (*Meta, error) {
	if !s.Exists(id) {
		return nil, errors.CommitNotFound(id)
	}
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return nil, fmt.Errorf("reading metadata of %s: %w", id, err)
	}

	meta := &Meta{ID: id}
	rest := string(data)
	for _, key := range []string{"parent", "date"} {
		line, tail, _ := strings.Cut(rest, "\n")
		value, ok := strings.CutPrefix(line, key+"=")
		if !ok {
			return nil, errors.Structural(fmt.Sprintf("metadata of %s: missing %s", id, key), nil)
		}
		switch key {
		case "parent":
			meta.Parents = splitParents(value)
		case "date":
			t, err := time.Parse(DateLayout, value)
			if err != nil {
				return nil, errors.Structural(fmt.Sprintf("metadata of %s: bad date", id), err)
			}
			meta.Time = t
		}
		rest = tail
	}
	msg, ok := strings.CutPrefix(rest, "message=")
	if !ok {
		return nil, errors.Structural(fmt.Sprintf("metadata of %s: missing message", id), nil)
	}
	meta.Message = msg
	return meta, nil
}

func splitParents(value string) []string {
	var parents []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parents = append(parents, p)
		}
	}
	return parents
}

// List returns every stored snapshot id in lexical order.
func (s *Store) List() ([]string, error) {
	return s.ByPrefix("")
}

// ByPrefix returns the stored ids starting with prefix.
func (s *Store) ByPrefix(prefix string) ([]string, error) {
	if prefix != "" && !validID(prefix) {
		return nil, nil
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) && validID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
