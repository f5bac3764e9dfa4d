package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Consumer ConsumerConfig `yaml:"consumer"`
	Supplies []SupplyConfig `yaml:"supplies"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

type ConsumerConfig struct {
	// Supply is the name requested at attach. Defaults to "controlled".
	Supply        string        `yaml:"supply"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// SupplyConfig declares one supply a consumer can attach to.
type SupplyConfig struct {
	Name    string      `yaml:"name"`
	Backend string      `yaml:"backend"`
	GPIO    GPIOConfig  `yaml:"gpio"`
	Sysfs   SysfsConfig `yaml:"sysfs"`
	I2C     I2CConfig   `yaml:"i2c"`
	Sim     SimConfig   `yaml:"sim"`
}

const (
	BackendSim   = "sim"
	BackendGPIO  = "gpio"
	BackendSysfs = "sysfs"
	BackendI2C   = "i2c"
)

type GPIOConfig struct {
	// Chip is a gpiochip name or path. Empty searches all chips for a named
	// Line; a numeric Line needs Chip.
	Chip string `yaml:"chip"`
	// Line is a line name (e.g. "GPIO17") or a numeric offset on Chip.
	Line      string `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
}

type SysfsConfig struct {
	Path     string `yaml:"path"`
	OnValue  string `yaml:"on_value"`
	OffValue string `yaml:"off_value"`
}

type I2CConfig struct {
	Bus       string `yaml:"bus"`
	Addr      uint16 `yaml:"addr"`
	Reg       uint8  `yaml:"reg"`
	Mask      uint8  `yaml:"mask"`
	ActiveLow bool   `yaml:"active_low"`
}

type SimConfig struct {
	AvailableAfter time.Duration `yaml:"available_after"`
	FailEnable     bool          `yaml:"fail_enable"`
	FailDisable    bool          `yaml:"fail_disable"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	BufferLines int    `yaml:"buffer_lines"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Consumer.Supply) == "" {
		cfg.Consumer.Supply = "controlled"
	}
	if cfg.Consumer.RetryInterval < 0 {
		return Config{}, fmt.Errorf("consumer.retry_interval must be >= 0")
	}
	if cfg.Consumer.RetryInterval == 0 {
		cfg.Consumer.RetryInterval = 1 * time.Second
	}

	seen := make(map[string]bool, len(cfg.Supplies))
	for i := range cfg.Supplies {
		s := &cfg.Supplies[i]
		if strings.TrimSpace(s.Name) == "" {
			return Config{}, fmt.Errorf("supplies[%d].name is required", i)
		}
		if seen[s.Name] {
			return Config{}, fmt.Errorf("supplies[%d].name %q is duplicated", i, s.Name)
		}
		seen[s.Name] = true
		if err := validateSupply(i, s); err != nil {
			return Config{}, err
		}
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		return Config{}, fmt.Errorf("log.format must be 'console' or 'json'")
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}

	return cfg, nil
}

func validateSupply(i int, s *SupplyConfig) error {
	if s.Backend == "" {
		s.Backend = BackendSim
	}
	switch s.Backend {
	case BackendSim:
		if s.Sim.AvailableAfter < 0 {
			return fmt.Errorf("supplies[%d].sim.available_after must be >= 0", i)
		}
	case BackendGPIO:
		if strings.TrimSpace(s.GPIO.Line) == "" {
			return fmt.Errorf("supplies[%d].gpio.line is required", i)
		}
		if _, err := strconv.Atoi(s.GPIO.Line); err == nil && strings.TrimSpace(s.GPIO.Chip) == "" {
			return fmt.Errorf("supplies[%d].gpio.chip is required for a numeric line", i)
		}
	case BackendSysfs:
		if strings.TrimSpace(s.Sysfs.Path) == "" {
			return fmt.Errorf("supplies[%d].sysfs.path is required", i)
		}
		if s.Sysfs.OnValue == "" {
			s.Sysfs.OnValue = "1"
		}
		if s.Sysfs.OffValue == "" {
			s.Sysfs.OffValue = "0"
		}
		if s.Sysfs.OnValue == s.Sysfs.OffValue {
			return fmt.Errorf("supplies[%d].sysfs.on_value and off_value must differ", i)
		}
	case BackendI2C:
		if s.I2C.Bus == "" {
			s.I2C.Bus = "/dev/i2c-1"
		}
		if s.I2C.Addr == 0 || s.I2C.Addr > 0x7F {
			return fmt.Errorf("supplies[%d].i2c.addr must be a 7-bit address", i)
		}
		if s.I2C.Mask == 0 {
			return fmt.Errorf("supplies[%d].i2c.mask is required", i)
		}
	default:
		return fmt.Errorf("supplies[%d].backend must be one of sim, gpio, sysfs, i2c", i)
	}
	return nil
}
