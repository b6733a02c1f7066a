package emulator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/video-system/go-camera-emulator/pkg/device"
)

// Config holds all emulator configuration.
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
	API     APIConfig      `yaml:"api"`
	Logging LoggingConfig  `yaml:"logging"`
}

// DeviceConfig configures one emulated camera device.
type DeviceConfig struct {
	ID        string `yaml:"id"`
	Backend   string `yaml:"backend"` // fake, file, stream, v4l2
	Source    string `yaml:"source"`  // file path, ws:// URL, or device node
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FPS       int    `yaml:"fps"`
	AutoStart bool   `yaml:"auto_start"` // start capturing at service startup
}

// APIConfig configures the control API.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Width <= 0 || d.Height <= 0 || d.Width%2 != 0 || d.Height%2 != 0 {
			return nil, fmt.Errorf("device %s: invalid geometry %dx%d", d.ID, d.Width, d.Height)
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	// A config with no devices gets a single synthetic camera.
	if len(c.Devices) == 0 {
		c.Devices = []DeviceConfig{{ID: "camera0", Backend: "fake", AutoStart: true}}
	}
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.ID == "" {
			d.ID = fmt.Sprintf("camera%d", i)
		}
		if d.Backend == "" {
			d.Backend = "fake"
		}
		if d.Width == 0 {
			d.Width = 640
		}
		if d.Height == 0 {
			d.Height = 480
		}
		if d.FPS == 0 {
			d.FPS = 30
		}
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// PixelFormat returns the capture format for configured devices. A single
// format is supported.
func (c *Config) PixelFormat() device.PixelFormat {
	return device.PixelFormatYUV420
}
