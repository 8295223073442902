// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/northstarmanager/nsm/internal/config"
	"github.com/northstarmanager/nsm/internal/launch"
	"github.com/northstarmanager/nsm/internal/selfupdate"
	"github.com/northstarmanager/nsm/internal/source"
	"github.com/northstarmanager/nsm/internal/tui"
	"github.com/northstarmanager/nsm/internal/updater"
)

type (
	// App wires CLI services and shared dependencies. Every Cobra handler
	// receives an App and goes through its fields, so tests can replace
	// the network, the prompt and process spawning.
	App struct {
		Config ConfigProvider
		// NewOpener builds the release client for a GitHub token.
		NewOpener func(token string) updater.Opener
		Prompter  updater.Prompter
		// RunProcess waits for the game client; StartProcess detaches servers.
		RunProcess   func(ctx context.Context, s launch.Spec) error
		StartProcess func(ctx context.Context, s launch.Spec) error
		// StartDeferred spawns the post-exit self replacement.
		StartDeferred func(a selfupdate.DeferredAction) error
		// IsSelf reports whether path is the running executable.
		IsSelf func(path string) bool
		// Progress receives download progress bars; nil disables them.
		Progress io.Writer
		// args are the command line arguments, reused when nsm relaunches.
		args   []string
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields are
	// replaced with production defaults by NewApp.
	Dependencies struct {
		Config        ConfigProvider
		NewOpener     func(token string) updater.Opener
		Prompter      updater.Prompter
		RunProcess    func(ctx context.Context, s launch.Spec) error
		StartProcess  func(ctx context.Context, s launch.Spec) error
		StartDeferred func(a selfupdate.DeferredAction) error
		IsSelf        func(path string) bool
		Progress      io.Writer
		Args          []string
		Stdout        io.Writer
		Stderr        io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Loaded, error)
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Args == nil {
		deps.Args = os.Args[1:]
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewOpener == nil {
		deps.NewOpener = newSourceClient
	}
	if deps.Prompter == nil {
		deps.Prompter = tui.NewRetryPrompter()
	}
	if deps.RunProcess == nil {
		deps.RunProcess = launch.Run
	}
	if deps.StartProcess == nil {
		deps.StartProcess = launch.Start
	}
	if deps.StartDeferred == nil {
		deps.StartDeferred = selfupdate.DeferredAction.Start
	}
	if deps.IsSelf == nil {
		deps.IsSelf = selfupdate.IsRunningExecutable
	}
	if deps.Progress == nil && isTerminal(deps.Stderr) {
		deps.Progress = deps.Stderr
	}

	return &App{
		Config:        deps.Config,
		NewOpener:     deps.NewOpener,
		Prompter:      deps.Prompter,
		RunProcess:    deps.RunProcess,
		StartProcess:  deps.StartProcess,
		StartDeferred: deps.StartDeferred,
		IsSelf:        deps.IsSelf,
		Progress:      deps.Progress,
		args:          deps.Args,
		stdout:        deps.Stdout,
		stderr:        deps.Stderr,
	}
}

func newSourceClient(token string) updater.Opener {
	opts := []source.ClientOption{source.WithUserAgent(config.AppName + "/" + Version)}
	if token != "" {
		opts = append(opts, source.WithToken(token))
	}
	return source.NewClient(opts...)
}
