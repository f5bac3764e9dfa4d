//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux I2C access through /dev/i2c-* using I2C_RDWR, which lets a register
// read go out as one combined write+read transfer (repeated start).

const (
	flagRead  = 0x0001 // I2C_M_RD
	ioctlRdwr = 0x0707 // I2C_RDWR
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrIoctlData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an open adapter such as /dev/i2c-1. Transfers on one Bus are
// serialized.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open opens the adapter device. A missing device node is reported with an
// error matching os.ErrNotExist.
func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

// Dev is a 7-bit addressed device on a Bus.
type Dev struct {
	bus  *Bus
	addr uint16
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var v [1]byte
	if err := d.transfer([]byte{reg}, v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}

func (d *Dev) WriteRegU8(reg, value byte) error {
	return d.transfer([]byte{reg, value}, nil)
}

// UpdateRegBits sets the bits in mask to the matching bits of value, leaving
// the rest of the register as read. The bus stays locked from the read to the
// write. The register is not written when it already holds the requested bits.
func (d *Dev) UpdateRegBits(reg, mask, value byte) error {
	if d == nil || d.bus == nil {
		return errors.New("i2c device is nil")
	}
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()

	var cur [1]byte
	if err := d.transferLocked([]byte{reg}, cur[:]); err != nil {
		return fmt.Errorf("read reg 0x%02X: %w", reg, err)
	}
	next := (cur[0] &^ mask) | (value & mask)
	if next == cur[0] {
		return nil
	}
	if err := d.transferLocked([]byte{reg, next}, nil); err != nil {
		return fmt.Errorf("write reg 0x%02X: %w", reg, err)
	}
	return nil
}

func (d *Dev) transfer(w, r []byte) error {
	if d == nil || d.bus == nil {
		return errors.New("i2c device is nil")
	}
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return d.transferLocked(w, r)
}

// transferLocked checks the device and runs one transfer. The caller holds
// d.bus.mu.
func (d *Dev) transferLocked(w, r []byte) error {
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("invalid i2c addr 0x%X", d.addr)
	}

	if len(w) == 0 && len(r) == 0 {
		return nil
	}
	if d.bus.f == nil {
		return errors.New("i2c bus closed")
	}
	return rdwrFn(d.bus.f, d.addr, w, r)
}

var rdwrFn = rdwr

// rdwr issues w then r as one combined transfer.
func rdwr(f *os.File, addr uint16, w, r []byte) error {
	msgs := make([]i2cMsg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	data := rdwrIoctlData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(ioctlRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return errno
	}
	return nil
}
