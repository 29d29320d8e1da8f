// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"

	"github.com/gantryhq/gantry/internal/config"

	"github.com/charmbracelet/log"
)

// newLogger builds the process logger from the log settings. verbose forces
// debug level.
func newLogger(w io.Writer, cfg config.LogConfig, verbose bool) *log.Logger {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Formatter:       formatter(cfg.Format),
	})
	if err != nil && cfg.Level != "" {
		logger.Warn("unknown log level, using info", "level", cfg.Level)
	}
	return logger
}

func formatter(f config.LogFormat) log.Formatter {
	switch f {
	case config.LogFormatJSON:
		return log.JSONFormatter
	case config.LogFormatLogfmt:
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
