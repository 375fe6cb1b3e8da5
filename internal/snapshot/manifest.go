package snapshot

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"wit/internal/diff"
	"wit/internal/errors"
)

// Entry records one file of a snapshot as it was at commit time.
type Entry struct {
	Path   string
	Size   int64
	Digest uint64
}

// Manifest lists a snapshot's files in path order.
type Manifest []Entry

func (m Manifest) encode() []byte {
	var buf bytes.Buffer
	for _, e := range m {
		fmt.Fprintf(&buf, "%016x %d %s\n", e.Digest, e.Size, e.Path)
	}
	return buf.Bytes()
}

func decodeManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.SplitN(sc.Text(), " ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed manifest line %q", sc.Text())
		}
		digest, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("manifest digest: %w", err)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("manifest size: %w", err)
		}
		m = append(m, Entry{Path: fields[2], Size: size, Digest: digest})
	}
	return m, sc.Err()
}

// BuildManifest hashes every file below dir.
func BuildManifest(dir string) (Manifest, error) {
	paths, err := diff.RelativePaths(dir)
	if err != nil {
		return nil, err
	}
	var m Manifest
	for _, rel := range diff.Sorted(paths) {
		e, err := hashFile(diff.Join(dir, rel))
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", rel, err)
		}
		e.Path = rel
		m = append(m, e)
	}
	return m, nil
}

func hashFile(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	h := xxh3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Size: n, Digest: h.Sum64()}, nil
}

// Manifest returns the manifest recorded when id was committed.
func (s *Store) Manifest(id string) (Manifest, error) {
	if m, ok := s.manifests.Get(id); ok {
		return m, nil
	}
	if !s.Exists(id) {
		return nil, errors.CommitNotFound(id)
	}

	f, err := os.Open(s.manifestPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Structural(fmt.Sprintf("snapshot %s has no manifest", id), err)
		}
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	m, err := decodeManifest(f)
	if err != nil {
		return nil, errors.Structural(fmt.Sprintf("snapshot %s has a corrupt manifest", id), err)
	}
	s.manifests.Add(id, m)
	return m, nil
}

// Damage lists how a snapshot departs from its manifest.
type Damage struct {
	Modified []string
	Missing  []string
	Extra    []string
}

func (d Damage) Empty() bool {
	return len(d.Modified) == 0 && len(d.Missing) == 0 && len(d.Extra) == 0
}

// Verify rehashes snapshot id and compares it with its manifest.
func (s *Store) Verify(id string) (Damage, error) {
	want, err := s.Manifest(id)
	if err != nil {
		return Damage{}, err
	}
	got, err := BuildManifest(s.Dir(id))
	if err != nil {
		return Damage{}, err
	}

	recorded := make(map[string]Entry, len(want))
	for _, e := range want {
		recorded[e.Path] = e
	}

	var d Damage
	for _, e := range got {
		w, ok := recorded[e.Path]
		switch {
		case !ok:
			d.Extra = append(d.Extra, e.Path)
		case w.Size != e.Size || w.Digest != e.Digest:
			d.Modified = append(d.Modified, e.Path)
		}
		delete(recorded, e.Path)
	}
	for _, e := range want {
		if _, ok := recorded[e.Path]; ok {
			d.Missing = append(d.Missing, e.Path)
		}
	}
	return d, nil
}
