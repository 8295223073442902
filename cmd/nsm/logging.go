// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"
)

const logTimeFormat = "15:04:05"

// newLogger builds the process-wide log handler. Library packages log
// through slog; the charm logger renders those records on w.
func newLogger(w io.Writer, level string, verbose bool) *log.Logger {
	lvl := log.InfoLevel
	if verbose {
		lvl = log.DebugLevel
	} else if level != "" {
		if parsed, err := log.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}

	return log.NewWithOptions(w, log.Options{
		Prefix:          "nsm",
		ReportTimestamp: true,
		TimeFormat:      logTimeFormat,
		Level:           lvl,
	})
}

// setupLogging installs the logger as the default slog handler.
func setupLogging(w io.Writer, level string, verbose bool) {
	slog.SetDefault(slog.New(newLogger(w, level, verbose)))
}
