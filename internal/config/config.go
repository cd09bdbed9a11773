// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the emulator configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

// Config is the root of the configuration file
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Serial   SerialConfig   `yaml:"serial"`
	Backdoor BackdoorConfig `yaml:"backdoor"`
	Device   DeviceConfig   `yaml:"device"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig is the LVREMOTE TCP listener. An empty Listen disables it.
type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	MaxConnections int           `yaml:"max_connections"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// SerialConfig serves LVREMOTE on a serial port. An empty Port disables it.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// BackdoorConfig is the introspection WebSocket and metrics listener.
// An empty Listen disables both.
type BackdoorConfig struct {
	Listen   string `yaml:"listen"`
	Path     string `yaml:"path"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Metrics  bool   `yaml:"metrics"`
}

// DeviceConfig is the instrument state at power-up
type DeviceConfig struct {
	VIPath            string  `yaml:"vi_path"`
	Connected         bool    `yaml:"connected"`
	HardwareConnected bool    `yaml:"hardware_connected"`
	Initialized       bool    `yaml:"initialized"`
	CrystalPos        int64   `yaml:"crystal_pos"`
	NudgeDist         int64   `yaml:"nudge_dist"`
	Wavelength        int64   `yaml:"wavelength"`
	Jitter            float64 `yaml:"jitter"`
	Seed              int64   `yaml:"seed"` // 0 seeds from the clock
}

// LogConfig selects the log level, format and destination
type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // text or json
	Output   string `yaml:"output"` // stdout, stderr or file
	FilePath string `yaml:"file_path"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         ":9999",
			MaxConnections: 16,
			ReadTimeout:    5 * time.Minute,
			WriteTimeout:   10 * time.Second,
			BufferSize:     4096,
			KeepAlive:      3 * time.Minute,
		},
		Serial: SerialConfig{
			Baud: 115200,
		},
		Backdoor: BackdoorConfig{
			Listen:  "127.0.0.1:9998",
			Path:    "/backdoor",
			Metrics: true,
		},
		Device: DeviceConfig{
			VIPath:     lvremote.DefaultVIPath,
			Connected:  true,
			CrystalPos: litron.DefaultCrystalPos,
			NudgeDist:  litron.DefaultNudgeDist,
			Wavelength: litron.DefaultWavelength,
			Jitter:     litron.DefaultJitter,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to the defaults when the file does
// not exist. The returned bool reports whether the file was read.
func LoadOrDefault(path string) (*Config, bool, error) {
	if path == "" {
		return Default(), false, nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Validate checks values that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("server.max_connections must be positive, got %d", c.Server.MaxConnections)
	}
	if c.Server.BufferSize < lvremote.LengthSize {
		return fmt.Errorf("server.buffer_size too small: %d", c.Server.BufferSize)
	}
	if c.Serial.Port != "" && c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Device.VIPath == "" {
		return errors.New("device.vi_path must not be empty")
	}
	if c.Device.Jitter < 0 {
		return fmt.Errorf("device.jitter must not be negative, got %v", c.Device.Jitter)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
