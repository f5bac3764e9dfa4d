//go:build linux

package i2c

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openNull(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return &Bus{f: f, path: "/dev/null"}
}

// fakeRegs answers rdwrFn with an in-memory register file.
type fakeRegs struct {
	regs   map[byte]byte
	writes int
}

func useFakeRegs(t *testing.T, regs map[byte]byte) *fakeRegs {
	t.Helper()
	fr := &fakeRegs{regs: regs}
	old := rdwrFn
	rdwrFn = func(_ *os.File, _ uint16, w, r []byte) error {
		if len(r) > 0 {
			r[0] = fr.regs[w[0]]
			// Give a concurrent writer the chance to slip in.
			runtime.Gosched()
			return nil
		}
		fr.regs[w[0]] = w[1]
		fr.writes++
		return nil
	}
	t.Cleanup(func() { rdwrFn = old })
	return fr
}

func TestDevTransfer_InvalidAddr(t *testing.T) {
	b := openNull(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).WriteRegU8(0x00, 0x01)
		assert.ErrorContains(t, err, "invalid i2c addr", "addr=0x%X", addr)
	}
}

func TestDevTransfer_EmptyIsNoop(t *testing.T) {
	b := openNull(t)
	assert.NoError(t, b.Dev(0x34).transfer(nil, nil))
}

func TestDevTransfer_ClosedBus(t *testing.T) {
	b := openNull(t)
	d := b.Dev(0x34)
	require.NoError(t, b.Close())
	assert.ErrorContains(t, d.WriteRegU8(0x10, 0x01), "closed")
	assert.ErrorContains(t, d.UpdateRegBits(0x10, 0x01, 0x01), "closed")
	// Second close is a no-op.
	assert.NoError(t, b.Close())
}

func TestOpen_MissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "i2c-9"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUpdateRegBits_PreservesOtherBits(t *testing.T) {
	b := openNull(t)
	fr := useFakeRegs(t, map[byte]byte{0x12: 0xA5})
	d := b.Dev(0x34)

	require.NoError(t, d.UpdateRegBits(0x12, 0x40, 0x40))
	assert.Equal(t, byte(0xE5), fr.regs[0x12])

	require.NoError(t, d.UpdateRegBits(0x12, 0x40, 0x00))
	assert.Equal(t, byte(0xA5), fr.regs[0x12])
	assert.Equal(t, 2, fr.writes)

	// Already in place: no write.
	require.NoError(t, d.UpdateRegBits(0x12, 0x01, 0xFF))
	assert.Equal(t, 2, fr.writes)
}

func TestUpdateRegBits_ConcurrentUpdatesDoNotLoseBits(t *testing.T) {
	b := openNull(t)
	fr := useFakeRegs(t, map[byte]byte{0x12: 0x00})

	var wg sync.WaitGroup
	for bit := 0; bit < 8; bit++ {
		mask := byte(1) << bit
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Dev(0x34).UpdateRegBits(0x12, mask, mask))
		}()
	}
	wg.Wait()
	assert.Equal(t, byte(0xFF), fr.regs[0x12])
}
