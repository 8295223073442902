// SPDX-License-Identifier: MPL-2.0

// Package launch starts the Northstar client and dedicated servers once an
// update pass has finished.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/shell"
	"mvdan.cc/sh/v3/syntax"
)

// DedicatedFlag makes NorthstarLauncher run a dedicated server.
const DedicatedFlag = "-dedicated"

// ErrExecutableNotFound is returned when the launcher executable is missing.
var ErrExecutableNotFound = errors.New("launcher executable not found")

//nolint:gochecknoglobals // Test seams for process execution.
var (
	runCommand   = func(cmd *exec.Cmd) error { return cmd.Run() }
	startCommand = func(cmd *exec.Cmd) error {
		if err := cmd.Start(); err != nil {
			return err
		}
		return cmd.Process.Release()
	}
)

// Spec describes one process to launch.
type Spec struct {
	// Name labels the process in logs.
	Name string
	// Dir is the working directory, usually a game directory.
	Dir string
	// Wrapper is prepended to the command line, e.g. ["wine"] or a Proton
	// run script on Linux.
	Wrapper    []string
	Executable string
	Args       []string
	Stdout     io.Writer
	Stderr     io.Writer
}

// Client returns the spec for the game client: the configured arguments
// followed by passthrough, the arguments given to nsm after "--".
func Client(gameDir, executable string, wrapper, args, passthrough []string) Spec {
	all := make([]string, 0, len(args)+len(passthrough))
	all = append(all, args...)
	all = append(all, passthrough...)
	return Spec{Name: "client", Dir: gameDir, Wrapper: wrapper, Executable: executable, Args: all}
}

// Server returns the spec for a dedicated server in serverDir. DedicatedFlag
// is added in front of args unless it is already present.
func Server(name, serverDir, executable string, wrapper, args []string) Spec {
	all := make([]string, 0, len(args)+1)
	if !containsFold(args, DedicatedFlag) {
		all = append(all, DedicatedFlag)
	}
	all = append(all, args...)
	return Spec{Name: name, Dir: serverDir, Wrapper: wrapper, Executable: executable, Args: all}
}

// Command builds the process for s. A relative executable is resolved
// against s.Dir.
func (s Spec) Command(ctx context.Context) (*exec.Cmd, error) {
	exe := s.Executable
	if !filepath.IsAbs(exe) {
		exe = filepath.Join(s.Dir, exe)
	}
	if _, err := os.Stat(exe); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutableNotFound, exe)
	}

	argv := make([]string, 0, len(s.Wrapper)+1+len(s.Args))
	argv = append(argv, s.Wrapper...)
	argv = append(argv, exe)
	argv = append(argv, s.Args...)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.Dir
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	return cmd, nil
}

// String renders the command line for logs.
func (s Spec) String() string {
	parts := make([]string, 0, len(s.Wrapper)+1+len(s.Args))
	for _, p := range append(append(append([]string(nil), s.Wrapper...), s.Executable), s.Args...) {
		q, err := syntax.Quote(p, syntax.LangBash)
		if err != nil {
			q = p
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// Run starts s and waits for it to exit.
func Run(ctx context.Context, s Spec) error {
	cmd, err := s.Command(ctx)
	if err != nil {
		return err
	}
	slog.Info("launching", "name", s.Name, "command", s.String())
	if err := runCommand(cmd); err != nil {
		return fmt.Errorf("running %s: %w", s.Name, err)
	}
	return nil
}

// Start starts s without waiting for it. The process outlives ctx.
func Start(ctx context.Context, s Spec) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd, err := s.Command(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	slog.Info("starting", "name", s.Name, "command", s.String())
	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("starting %s: %w", s.Name, err)
	}
	return nil
}

// SplitArgs splits a legacy single-string argument list the way a shell
// would, so quoted values keep their spaces. Variables expand to nothing.
func SplitArgs(s string) ([]string, error) {
	args, err := shell.Fields(s, func(string) string { return "" })
	if err != nil {
		return nil, fmt.Errorf("splitting arguments %q: %w", s, err)
	}
	return args, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
