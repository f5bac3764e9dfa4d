//go:build linux

package supply

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reg-consumer/internal/config"
	"reg-consumer/internal/regulator"
)

func withGPIODevDir(t *testing.T, dir string) {
	t.Helper()
	old := gpioDevDir
	gpioDevDir = dir
	t.Cleanup(func() { gpioDevDir = old })
}

func TestGPIOHandle_Level(t *testing.T) {
	cases := []struct {
		name      string
		activeLow bool
		on        bool
		want      int
	}{
		{"active high on", false, true, 1},
		{"active high off", false, false, 0},
		{"active low on", true, true, 0},
		{"active low off", true, false, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &gpioHandle{activeLow: tc.activeLow}
			assert.Equal(t, tc.want, h.level(tc.on))
		})
	}
}

func TestGPIOHandle_RequestedAtInactiveLevel(t *testing.T) {
	// openGPIO requests the line with level(false); the pin must come up with
	// the regulator off for either polarity.
	assert.Equal(t, 0, (&gpioHandle{}).level(false))
	assert.Equal(t, 1, (&gpioHandle{activeLow: true}).level(false))
}

func TestGPIOHandle_SetAfterClose(t *testing.T) {
	h := &gpioHandle{}
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Error(t, h.Enable())
	assert.Error(t, h.Disable())
}

func TestGPIOChipCandidates(t *testing.T) {
	dir := t.TempDir()
	withGPIODevDir(t, dir)
	for _, n := range []string{"gpiochip1", "gpiochip0", "i2c-1", "gpiomem"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "gpiochip-dir"), 0o755))

	assert.Equal(t, []string{filepath.Join(dir, "gpiochip2")}, gpioChipCandidates("gpiochip2"))
	assert.Equal(t, []string{"/dev/gpiochip4"}, gpioChipCandidates("/dev/gpiochip4"))
	assert.Equal(t, []string{
		filepath.Join(dir, "gpiochip0"),
		filepath.Join(dir, "gpiochip1"),
	}, gpioChipCandidates(""))
}

func TestOpenGPIO_NumericLineNeedsChip(t *testing.T) {
	dir := t.TempDir()
	withGPIODevDir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gpiochip0"), nil, 0o644))

	_, err := openGPIO("controlled", config.GPIOConfig{Line: "17"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, regulator.ErrDeferred)
	assert.Contains(t, err.Error(), "explicit chip")
}

func TestOpenGPIO_MissingChipDefers(t *testing.T) {
	withGPIODevDir(t, t.TempDir())

	_, err := openGPIO("controlled", config.GPIOConfig{Chip: "gpiochip3", Line: "5"})
	assert.ErrorIs(t, err, regulator.ErrDeferred)

	_, err = openGPIO("controlled", config.GPIOConfig{Line: "GPIO17"})
	assert.ErrorIs(t, err, regulator.ErrDeferred)
}
