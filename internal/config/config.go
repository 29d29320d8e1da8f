// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gantryhq/gantry/internal/cueutil"
	"github.com/gantryhq/gantry/internal/issue"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "gantry"
	// ConfigFileName is the file name looked up in ConfigDir.
	ConfigFileName = "config.cue"
	// LocalConfigFileName is the file name looked up in the project directory.
	LocalConfigFileName = "gantry.config.cue"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "GANTRY"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the gantry configuration directory using platform
// conventions: %APPDATA% on Windows, ~/Library/Application Support on macOS
// and $XDG_CONFIG_HOME (defaulting to ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("container_engine", string(defaults.ContainerEngine))
	v.SetDefault("recipe", defaults.Recipe)
	v.SetDefault("build.name", defaults.Build.Name)
	v.SetDefault("build.no_cache", defaults.Build.NoCache)
	v.SetDefault("build.require_pinned", defaults.Build.RequirePinned)
	v.SetDefault("build.keep_context", defaults.Build.KeepContext)
	v.SetDefault("launch.workers", defaults.Launch.Workers)
	v.SetDefault("launch.host", defaults.Launch.Host)
	v.SetDefault("launch.port", defaults.Launch.Port)
	v.SetDefault("launch.app", defaults.Launch.App)
	v.SetDefault("launch.graceful_timeout", defaults.Launch.GracefulTimeout)
	v.SetDefault("launch.startup_timeout", defaults.Launch.StartupTimeout)
	v.SetDefault("launch.max_restarts", defaults.Launch.MaxRestarts)
	v.SetDefault("launch.restart_window", defaults.Launch.RestartWindow)
	v.SetDefault("launch.respawn_interval", defaults.Launch.RespawnInterval)
	v.SetDefault("launch.metrics_addr", defaults.Launch.MetricsAddr)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", string(defaults.Log.Format))

	// GANTRY_LAUNCH_PORT style overrides for every key.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names plus the conventional PaaS variables. Earlier names win.
	_ = v.BindEnv("launch.workers", EnvPrefix+"_WORKERS", "WEB_CONCURRENCY")
	_ = v.BindEnv("launch.port", EnvPrefix+"_PORT", "PORT")
	_ = v.BindEnv("container_engine", EnvPrefix+"_ENGINE")

	return v
}

// loadWithOptions performs option-driven config loading without caching.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	resolvedPath, err := resolveConfigPath(opts)
	if err != nil {
		return nil, "", err
	}
	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", loadError(resolvedPath, err,
				"Check that the file contains valid CUE syntax",
				"Verify the configuration values match the expected schema",
				"Run 'gantry config show' to see the effective configuration")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := errors.Join(cfg.ContainerEngine.Validate(), cfg.Launch.Validate()); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check GANTRY_* and PORT/WEB_CONCURRENCY environment variables").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// resolveConfigPath returns the first existing config file in search order,
// or "" when none exists. An explicit path must exist.
func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", loadError(opts.ConfigFilePath,
				fmt.Errorf("config file not found: %s", opts.ConfigFilePath),
				"Verify the file path is correct",
				"Check that the file exists and is readable",
				"Run 'gantry config init' to create a default configuration")
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
	if err != nil {
		return "", err
	}
	if p := filepath.Join(cfgDir, ConfigFileName); fileExists(p) {
		return p, nil
	}

	if p := filepath.Join(opts.LocalDir, LocalConfigFileName); fileExists(p) {
		return p, nil
	}

	return "", nil
}

func loadError(path string, err error, suggestions ...string) error {
	ctx := issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithIssue(issue.ConfigLoadFailedId)
	for _, s := range suggestions {
		ctx = ctx.WithSuggestion(s)
	}
	return ctx.Wrap(err).BuildError()
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into v.
// Fields are optional, so validation is non-concrete and the result is decoded
// into a map for Viper rather than a struct.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := cueutil.Unify(configSchema, data, "#Config",
		cueutil.WithFilename(path), cueutil.WithConcrete(false))
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// ValidateFile checks a config file against the schema without loading it.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	_, err = cueutil.Unify(configSchema, data, "#Config",
		cueutil.WithFilename(path), cueutil.WithConcrete(false))
	return err
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to dir (ConfigDir when
// empty) unless a file already exists. It returns the file path.
func CreateDefaultConfig(dir string) (string, bool, error) {
	cfgDir, err := configDirWithOverride(dir)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, false, nil
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, true, nil
}

// GenerateCUE renders cfg as a CUE document accepted by #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// gantry configuration\n\n")

	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	fmt.Fprintf(&sb, "recipe: %q\n", cfg.Recipe)

	sb.WriteString("\nbuild: {\n")
	fmt.Fprintf(&sb, "\tname: %q\n", cfg.Build.Name)
	fmt.Fprintf(&sb, "\tno_cache: %v\n", cfg.Build.NoCache)
	fmt.Fprintf(&sb, "\trequire_pinned: %v\n", cfg.Build.RequirePinned)
	fmt.Fprintf(&sb, "\tkeep_context: %v\n", cfg.Build.KeepContext)
	sb.WriteString("}\n")

	l := cfg.Launch
	sb.WriteString("\nlaunch: {\n")
	fmt.Fprintf(&sb, "\tworkers: %d\n", l.Workers)
	fmt.Fprintf(&sb, "\thost: %q\n", l.Host)
	fmt.Fprintf(&sb, "\tport: %d\n", l.Port)
	fmt.Fprintf(&sb, "\tapp: %q\n", l.App)
	fmt.Fprintf(&sb, "\tgraceful_timeout: %q\n", l.GracefulTimeout.String())
	fmt.Fprintf(&sb, "\tstartup_timeout: %q\n", l.StartupTimeout.String())
	fmt.Fprintf(&sb, "\tmax_restarts: %d\n", l.MaxRestarts)
	fmt.Fprintf(&sb, "\trestart_window: %q\n", l.RestartWindow.String())
	fmt.Fprintf(&sb, "\trespawn_interval: %q\n", l.RespawnInterval.String())
	if l.MetricsAddr != "" {
		fmt.Fprintf(&sb, "\tmetrics_addr: %q\n", l.MetricsAddr)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	return sb.String()
}
