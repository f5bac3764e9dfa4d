package supply

import (
	"errors"
	"fmt"
	"os"
	"time"

	"reg-consumer/internal/config"
	"reg-consumer/internal/regulator"
)

// sysfsRetryWindow bounds how long a write keeps retrying transient
// permission/not-found errors while udev settles a freshly created node.
var sysfsRetryWindow = 2 * time.Second

// sysfsHandle drives a supply through a writable attribute file, for example
// a kernel userspace-consumer "state" node or a GPIO value file.
type sysfsHandle struct {
	path string
	on   string
	off  string
}

func openSysfs(c config.SysfsConfig) (regulator.Handle, error) {
	fi, err := os.Stat(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", c.Path, regulator.ErrDeferred)
		}
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", c.Path)
	}
	on, off := c.OnValue, c.OffValue
	if on == "" {
		on = "1"
	}
	if off == "" {
		off = "0"
	}
	return &sysfsHandle{path: c.Path, on: on, off: off}, nil
}

func (h *sysfsHandle) Enable() error  { return writeSysfs(h.path, h.on) }
func (h *sysfsHandle) Disable() error { return writeSysfs(h.path, h.off) }
func (h *sysfsHandle) Close() error   { return nil }

func writeSysfs(path string, value string) error {
	// O_WRONLY without O_TRUNC/O_CREATE: some attributes reject truncation
	// even when the mode bits allow writes.
	deadline := time.Now().Add(sysfsRetryWindow)
	for {
		err := writeOnce(path, value)
		if err == nil {
			return nil
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
}

func writeOnce(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	if werr != nil && cerr != nil {
		return errors.Join(werr, cerr)
	}
	if werr != nil {
		return werr
	}
	return cerr
}
