//go:build !windows

package archive

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

// openFileNoFollow opens a file for writing with O_NOFOLLOW so a symlink
// planted at the temp path is never followed. O_CLOEXEC prevents FD leaks
// across exec.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewFilesystem(path, stderrors.New("cannot write to symlink"))
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
