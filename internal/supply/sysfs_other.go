//go:build !unix

package supply

import "os"

func isRetryableSysfsErr(err error) bool {
	return os.IsPermission(err) || os.IsNotExist(err)
}
