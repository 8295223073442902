// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Config holds common configuration for TUI components.
type Config struct {
	// Accessible replaces interactive widgets with plain line prompts.
	Accessible bool
	// Width specifies the width of the component (0 for auto).
	Width int
	// Input is read by prompts. Nil means stdin.
	Input io.Reader
	// Output receives component output. Nil means stderr.
	Output io.Writer
}

// DefaultConfig returns the configuration for the current process. Accessible
// mode is enabled when stdin is not a terminal or ACCESSIBLE is set.
//
// Output goes to stderr so prompts stay visible when stdout is redirected.
func DefaultConfig() Config {
	return Config{
		Accessible: !isInputTerminal() || os.Getenv("ACCESSIBLE") != "",
		Input:      os.Stdin,
		Output:     os.Stderr,
	}
}

// IsInteractive reports whether both stdin and stderr are terminals.
func IsInteractive() bool {
	return isInputTerminal() && term.IsTerminal(int(os.Stderr.Fd()))
}

// isInputTerminal returns true if stdin is connected to a terminal.
func isInputTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (c Config) input() io.Reader {
	if c.Input != nil {
		return c.Input
	}
	return os.Stdin
}

func (c Config) output() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stderr
}
