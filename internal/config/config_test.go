// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "litronsim.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Device.VIPath != lvremote.DefaultVIPath {
		t.Errorf("vi_path=%q", cfg.Device.VIPath)
	}
	if !cfg.Device.Connected || cfg.Device.Initialized || cfg.Device.HardwareConnected {
		t.Errorf("unexpected power-up flags: %+v", cfg.Device)
	}
	if cfg.Device.CrystalPos != litron.DefaultCrystalPos || cfg.Device.Jitter != litron.DefaultJitter {
		t.Errorf("unexpected device defaults: %+v", cfg.Device)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":7000"
  read_timeout: 30s
device:
  crystal_pos: 1000
  hardware_connected: true
log:
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != ":7000" || cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("server=%+v", cfg.Server)
	}
	if cfg.Device.CrystalPos != 1000 || !cfg.Device.HardwareConnected {
		t.Errorf("device=%+v", cfg.Device)
	}
	// untouched keys keep defaults
	if cfg.Server.MaxConnections != Default().Server.MaxConnections {
		t.Errorf("max_connections=%d", cfg.Server.MaxConnections)
	}
	if !cfg.Device.Connected {
		t.Error("connected lost its default")
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Errorf("log=%+v", cfg.Log)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "server: [", "parse config"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"zero connections", "server:\n  max_connections: 0\n", "max_connections"},
		{"negative jitter", "device:\n  jitter: -1\n", "jitter"},
		{"empty vi path", "device:\n  vi_path: \"\"\n", "vi_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, found, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if cfg.Server.Listen != Default().Server.Listen {
		t.Errorf("listen=%q", cfg.Server.Listen)
	}

	cfg, found, err = LoadOrDefault(writeConfig(t, "serial:\n  port: /dev/ttyUSB0\n"))
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" || cfg.Serial.Baud != 115200 {
		t.Errorf("serial=%+v", cfg.Serial)
	}
}
