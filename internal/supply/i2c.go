package supply

import (
	"errors"
	"fmt"
	"io"
	"os"

	"reg-consumer/internal/config"
	"reg-consumer/internal/i2c"
	"reg-consumer/internal/regulator"
)

// regUpdater is the slice of an I2C device a PMIC enable bit needs.
type regUpdater interface {
	UpdateRegBits(reg, mask, value byte) error
}

// i2cHandle switches a PMIC output through an enable bit in one register.
type i2cHandle struct {
	dev       regUpdater
	bus       io.Closer
	reg       byte
	mask      byte
	activeLow bool
}

func openI2C(c config.I2CConfig) (regulator.Handle, error) {
	bus, err := i2c.Open(c.Bus)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", c.Bus, regulator.ErrDeferred)
		}
		return nil, fmt.Errorf("open %s: %w", c.Bus, err)
	}
	return &i2cHandle{dev: bus.Dev(c.Addr), bus: bus, reg: c.Reg, mask: c.Mask, activeLow: c.ActiveLow}, nil
}

var openI2CFn = openI2C

func (h *i2cHandle) set(on bool) error {
	if on == h.activeLow {
		return h.dev.UpdateRegBits(h.reg, h.mask, 0)
	}
	return h.dev.UpdateRegBits(h.reg, h.mask, h.mask)
}

func (h *i2cHandle) Enable() error  { return h.set(true) }
func (h *i2cHandle) Disable() error { return h.set(false) }

func (h *i2cHandle) Close() error {
	if h.bus == nil {
		return nil
	}
	err := h.bus.Close()
	h.bus = nil
	return err
}
