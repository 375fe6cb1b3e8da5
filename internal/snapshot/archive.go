package snapshot

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"wit/internal/diff"
)

// Export streams snapshot id to w as a zstd-compressed tar archive. Entries
// carry the snapshot's relative paths in lexical order.
func (s *Store) Export(id string, w io.Writer) error {
	m, err := s.Manifest(id)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}

	tw := tar.NewWriter(enc)
	for _, e := range m {
		if err := addFile(tw, diff.Join(s.Dir(id), e.Path), e.Path); err != nil {
			enc.Close()
			return fmt.Errorf("archiving %s: %w", e.Path, err)
		}
	}
	if err := tw.Close(); err != nil {
		enc.Close()
		return fmt.Errorf("finalizing tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing compression: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
