//go:build !linux

package supply

import (
	"fmt"

	"reg-consumer/internal/config"
	"reg-consumer/internal/regulator"
)

func openGPIO(name string, c config.GPIOConfig) (regulator.Handle, error) {
	return nil, fmt.Errorf("gpio unsupported on this platform")
}

var openGPIOFn = openGPIO
