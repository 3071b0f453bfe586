//go:build unix

package watcher

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isFatal reports whether err means the kernel can no longer deliver events:
// the inotify watch limit or the file descriptor limit was reached.
func isFatal(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)
}
