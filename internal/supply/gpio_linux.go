//go:build linux

package supply

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/warthog618/go-gpiocdev"

	"reg-consumer/internal/config"
	"reg-consumer/internal/regulator"
)

// openGPIO requests the enable line of a fixed regulator as an output driven
// to the inactive level. A chip or line that does not exist yet defers.
func openGPIO(name string, c config.GPIOConfig) (regulator.Handle, error) {
	if _, err := strconv.Atoi(c.Line); err == nil && c.Chip == "" {
		// An offset only means something on one controller.
		return nil, fmt.Errorf("gpio line %q: numeric offset needs an explicit chip", c.Line)
	}
	for _, chipPath := range gpioChipCandidates(c.Chip) {
		if _, err := os.Stat(chipPath); err != nil {
			continue
		}
		chip, err := gpiocdev.NewChip(chipPath, gpiocdev.WithConsumer("reg-consumer-"+name))
		if err != nil {
			continue
		}
		offset, err := lineOffset(chip, c.Line)
		if err != nil {
			_ = chip.Close()
			continue
		}
		h := &gpioHandle{activeLow: c.ActiveLow}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(h.level(false)))
		if err != nil {
			_ = chip.Close()
			// The line exists but is held elsewhere; waiting will not help.
			return nil, fmt.Errorf("request %s line %s: %w", chipPath, c.Line, err)
		}
		h.chip = chip
		h.line = line
		return h, nil
	}
	return nil, fmt.Errorf("gpio line %q not found: %w", c.Line, regulator.ErrDeferred)
}

var (
	openGPIOFn = openGPIO
	gpioDevDir = "/dev"
)

func gpioChipCandidates(chip string) []string {
	if chip != "" {
		if !strings.HasPrefix(chip, "/") {
			chip = filepath.Join(gpioDevDir, chip)
		}
		return []string{chip}
	}
	var out []string
	entries, _ := os.ReadDir(gpioDevDir)
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "gpiochip") {
			out = append(out, filepath.Join(gpioDevDir, e.Name()))
		}
	}
	return out
}

// lineOffset accepts either a line name or a numeric offset.
func lineOffset(chip *gpiocdev.Chip, line string) (int, error) {
	if n, err := strconv.Atoi(line); err == nil {
		if n < 0 || n >= chip.Lines() {
			return 0, fmt.Errorf("offset %d out of range", n)
		}
		return n, nil
	}
	return chip.FindLine(line)
}

type gpioHandle struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

func (g *gpioHandle) level(on bool) int {
	if on != g.activeLow {
		return 1
	}
	return 0
}

func (g *gpioHandle) set(on bool) error {
	if g.line == nil {
		return fmt.Errorf("gpio line released")
	}
	return g.line.SetValue(g.level(on))
}

func (g *gpioHandle) Enable() error  { return g.set(true) }
func (g *gpioHandle) Disable() error { return g.set(false) }

// Close releases the line. The kernel keeps the last driven level only as
// long as the line is requested, so the output is left to the hardware
// default afterwards.
func (g *gpioHandle) Close() error {
	if g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
