// Package filestore maps sheet ids to their on-disk spreadsheet file and
// handles adoption of uploaded temporary files into permanent storage.
package filestore

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sharecell/cell/pkg/sheet"
)

// Store places one spreadsheet file per sheet id under a single directory.
// The filesystem is injected; production use passes afero.NewOsFs() so the
// stored paths stay readable by the spreadsheet codec.
type Store struct {
	fs  afero.Fs
	dir string
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating file store dir %s: %w", dir, err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// PathFor returns the permanent location for sheetID. Pure, no I/O. The
// stored name carries an .xlsx suffix: the codec refuses to save to a path
// whose extension it does not recognize.
func (s *Store) PathFor(sheetID string) string {
	return filepath.Join(s.dir, sheetID+".xlsx")
}

// Exists reports whether a spreadsheet file is stored for sheetID. Any stat
// failure counts as absent.
func (s *Store) Exists(sheetID string) bool {
	info, err := s.fs.Stat(s.PathFor(sheetID))
	return err == nil && info.Mode().IsRegular()
}

// Adopt relocates the uploaded file at tempPath to sheetID's permanent
// location. On success the temporary file is gone; on failure no partial
// permanent file is left behind.
func (s *Store) Adopt(sheetID, tempPath string) error {
	dest := s.PathFor(sheetID)

	if err := s.fs.Rename(tempPath, dest); err == nil {
		return nil
	}

	// Rename fails across filesystems (uploads often land on a tmpfs). Copy
	// through a sibling of the destination so the final rename is atomic.
	if err := s.copyAdopt(tempPath, dest); err != nil {
		return fmt.Errorf("%w: adopting %s: %v", sheet.ErrIO, sheetID, err)
	}
	if err := s.fs.Remove(tempPath); err != nil {
		return fmt.Errorf("%w: removing uploaded temp %s: %v", sheet.ErrIO, tempPath, err)
	}
	return nil
}

func (s *Store) copyAdopt(src, dest string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	staging, err := afero.TempFile(s.fs, s.dir, filepath.Base(dest)+".adopt-*")
	if err != nil {
		return err
	}
	stagingPath := staging.Name()

	if _, err := io.Copy(staging, in); err != nil {
		staging.Close()
		s.fs.Remove(stagingPath)
		return err
	}
	if err := staging.Sync(); err != nil {
		staging.Close()
		s.fs.Remove(stagingPath)
		return err
	}
	if err := staging.Close(); err != nil {
		s.fs.Remove(stagingPath)
		return err
	}
	if err := s.fs.Rename(stagingPath, dest); err != nil {
		s.fs.Remove(stagingPath)
		return err
	}
	return nil
}
