package archive

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/hidez8891/zip"
	"go.uber.org/multierr"
)

// ErrExists is returned when entry with the same name was already added.
var ErrExists = errors.New("entry already exists")

// Writer packs results into a single zip archive.
type Writer struct {
	file  *os.File
	zw    *zip.Writer
	names map[string]struct{}
}

// Create makes new archive at name. Existing file is replaced only when
// overwrite is set.
func Create(name string, overwrite bool) (*Writer, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(name, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to create archive: %w", err)
	}
	return &Writer{file: f, zw: zip.NewWriter(f), names: make(map[string]struct{})}, nil
}

// Name returns file name of the archive.
func (w *Writer) Name() string {
	return w.file.Name()
}

// Has reports whether entry was already added.
func (w *Writer) Has(name string) bool {
	_, ok := w.names[path.Clean(name)]
	return ok
}

// Add stores data under slash separated name.
func (w *Writer) Add(name string, modified time.Time, data []byte) error {
	name = path.Clean(name)
	if !isSafePath(name) {
		return fmt.Errorf("zip entry %q: unsafe path", name)
	}
	if w.Has(name) {
		return fmt.Errorf("zip entry %q: %w", name, ErrExists)
	}
	dst, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("zip entry %q: %w", name, err)
	}
	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("zip entry %q: %w", name, err)
	}
	w.names[name] = struct{}{}
	return nil
}

// Close finishes the archive.
func (w *Writer) Close() error {
	return multierr.Append(w.zw.Close(), w.file.Close())
}
