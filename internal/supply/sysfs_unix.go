//go:build unix

package supply

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isRetryableSysfsErr(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOENT)
}
