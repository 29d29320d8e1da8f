// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"testing"
	"time"
)

func TestConfigAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host string
		port int
		want string
	}{
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"::", 9000, "[::]:9000"},
		{"127.0.0.1", 0, "127.0.0.1:0"},
	}
	for _, tt := range tests {
		cfg := Config{Host: tt.host, Port: tt.port}
		if got := cfg.Address(); got != tt.want {
			t.Errorf("Address(%s, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"ephemeral port", func(c *Config) { c.Port = 0 }, false},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"negative port", func(c *Config) { c.Port = -1 }, true},
		{"no app", func(c *Config) { c.App = "" }, true},
		{"zero startup timeout", func(c *Config) { c.StartupTimeout = 0 }, true},
		{"negative grace", func(c *Config) { c.GracefulTimeout = -time.Second }, true},
		{"zero grace", func(c *Config) { c.GracefulTimeout = 0 }, false},
		{"negative restarts", func(c *Config) { c.MaxRestarts = -1 }, true},
		{"negative window", func(c *Config) { c.RestartWindow = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
