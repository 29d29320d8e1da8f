// SPDX-License-Identifier: MPL-2.0

// Package config loads gantry settings with Viper, using CUE as the file format.
//
// The configuration file is looked up at the path given with --config, then at
// gantry/config.cue under the user configuration directory ($XDG_CONFIG_HOME,
// ~/Library/Application Support or %APPDATA%), then at ./gantry.config.cue.
// Every file is validated against the embedded config_schema.cue before its
// values are merged over the defaults. GANTRY_* environment variables override
// file values; WEB_CONCURRENCY and PORT are honored for the launch defaults.
package config
