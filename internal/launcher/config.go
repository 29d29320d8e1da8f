// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config configures a Master.
type Config struct {
	Workers int
	Host    string
	// Port 0 binds an ephemeral port; see Master.Addr.
	Port int
	App  string

	GracefulTimeout time.Duration
	StartupTimeout  time.Duration
	// MaxRestarts is the number of worker exits tolerated within
	// RestartWindow. One more is a crash loop.
	MaxRestarts   int
	RestartWindow time.Duration
	// RespawnInterval is the minimum spacing between respawns.
	RespawnInterval time.Duration

	// MetricsAddr serves Prometheus metrics and /healthz when set.
	MetricsAddr string
}

// DefaultConfig mirrors the default configuration file.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		Host:            "0.0.0.0",
		Port:            8080,
		App:             "app:app",
		GracefulTimeout: 30 * time.Second,
		StartupTimeout:  30 * time.Second,
		MaxRestarts:     5,
		RestartWindow:   time.Minute,
		RespawnInterval: time.Second,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 0-65535, got %d", c.Port))
	}
	if c.App == "" {
		errs = append(errs, errors.New("application reference is required"))
	}
	if c.StartupTimeout <= 0 {
		errs = append(errs, errors.New("startup timeout must be positive"))
	}
	if c.GracefulTimeout < 0 {
		errs = append(errs, errors.New("graceful timeout must not be negative"))
	}
	if c.MaxRestarts < 0 {
		errs = append(errs, errors.New("max restarts must not be negative"))
	}
	if c.RestartWindow < 0 || c.RespawnInterval < 0 {
		errs = append(errs, errors.New("restart window and respawn interval must not be negative"))
	}
	return errors.Join(errs...)
}
