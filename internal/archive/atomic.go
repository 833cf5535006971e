package archive

import (
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// ensureDir creates dir and its parents. It succeeds if dir already exists.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errors.NewFilesystem(dir, err)
	}
	return nil
}

// sourceReader records read errors so they can be told apart from write errors.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// writeFileAtomic streams r into path via a temp file in the same directory,
// stamps atime and mtime with modTime (unless zero), then renames it into
// place. An existing file at path is replaced; on failure it is left intact
// and the temp file is removed.
//
// Read errors from r are reported as TRANSPORT, everything else as FILESYSTEM.
func writeFileAtomic(path string, r io.Reader, modTime time.Time) (int64, error) {
	dir := filepath.Dir(path)
	if err := ensureDir(dir); err != nil {
		return 0, err
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return 0, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := filepath.Join(dir, "."+filepath.Base(path)+"."+hex.EncodeToString(randBytes)+".tmp")
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		if errors.Is(err, errors.ErrFilesystem) {
			return 0, err
		}
		return 0, errors.NewFilesystem(path, err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	src := &sourceReader{r: r}
	n, err := io.Copy(file, src)
	if err != nil {
		if src.err != nil {
			return n, errors.NewTransport("read payload for "+filepath.Base(path), src.err)
		}
		return n, errors.NewFilesystem(path, err)
	}

	if err := file.Sync(); err != nil {
		return n, errors.NewFilesystem(path, err)
	}

	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return n, errors.NewFilesystem(path, err)
	}
	file = nil

	if !modTime.IsZero() {
		if err := os.Chtimes(tempPath, modTime, modTime); err != nil {
			return n, errors.NewFilesystem(path, err)
		}
	}

	// Never replace a symlink at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return n, errors.NewFilesystem(path, stderrors.New("destination is a symlink"))
	}

	if err := os.Rename(tempPath, path); err != nil {
		return n, errors.NewFilesystem(path, err)
	}

	success = true
	return n, nil
}
