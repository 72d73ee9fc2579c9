package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type SerialCfg struct {
	Port string `yaml:"port"` // e.g. /dev/ttyACM0
	Baud int    `yaml:"baud"` // e.g. 250000
}

type GPIOCfg struct {
	RedPin   string `yaml:"red_pin"`   // e.g. GPIO18
	GreenPin string `yaml:"green_pin"` // e.g. GPIO13
	BluePin  string `yaml:"blue_pin"`  // e.g. GPIO19
}

type SweepCfg struct {
	Step       int `yaml:"step"`
	IntervalMs int `yaml:"interval_ms"`
}

type RampCfg struct {
	Step       int `yaml:"step"`
	Ceiling    int `yaml:"ceiling"`
	IntervalMs int `yaml:"interval_ms"`
}

type ExportCfg struct {
	Size int    `yaml:"size"` // 4096 | 65536
	Path string `yaml:"path"`
}

type Config struct {
	Transport string `yaml:"transport"` // "serial" | "gpio" | "sim"
	BitDepth  int    `yaml:"bit_depth"` // 12 | 16
	Listen    string `yaml:"listen"`    // control server address
	Profile   string `yaml:"profile,omitempty"`

	Serial SerialCfg `yaml:"serial,omitempty"`
	GPIO   GPIOCfg   `yaml:"gpio,omitempty"`
	Sweep  SweepCfg  `yaml:"sweep,omitempty"`
	Ramp   RampCfg   `yaml:"ramp,omitempty"`
	Export ExportCfg `yaml:"export,omitempty"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
