// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/northstarmanager/nsm/internal/config"
	"github.com/northstarmanager/nsm/internal/issue"
	"github.com/northstarmanager/nsm/internal/launch"
)

type launchFlags struct {
	noLaunch bool
	servers  bool
}

func (f *launchFlags) register(cmd *cobra.Command, withNoLaunch bool) {
	if withNoLaunch {
		cmd.Flags().BoolVar(&f.noLaunch, "no-launch", false, "update only, do not start the game")
	}
	cmd.Flags().BoolVar(&f.servers, "servers", false, "also start every enabled dedicated server")
}

func newLaunchCommand(app *App, flags *rootFlags) *cobra.Command {
	var lf launchFlags
	cmd := &cobra.Command{
		Use:   "launch [-- game arguments]",
		Short: "Start the game without checking for updates",
		Example: `  # Start the client and all dedicated servers
  nsm launch --servers

  # Pass arguments to NorthstarLauncher
  nsm launch -- -novid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: flags.configPath})
			if err != nil {
				return err
			}
			setupLogging(app.stderr, string(loaded.Config.Manager.LogLevel), flags.verbose)
			if err := config.CheckGameDir(loaded.GameDir); err != nil {
				return err
			}
			return app.launchGame(cmd.Context(), loaded.Config, loaded.GameDir, lf.servers, passthroughArgs(cmd, args))
		},
	}
	lf.register(cmd, false)
	return cmd
}

// launchGame starts the enabled dedicated servers in the background when
// servers is set, then runs the client until it exits.
func (app *App) launchGame(ctx context.Context, cfg *config.Config, gameDir string, servers bool, passthrough []string) error {
	if servers {
		for i := range cfg.Servers {
			s := &cfg.Servers[i]
			if !s.Enabled {
				continue
			}
			exe := s.Executable
			if exe == "" {
				exe = cfg.Launcher.Executable
			}
			spec := launch.Server(s.Name, config.ServerDir(s, gameDir), exe, cfg.Launcher.Wrapper, s.Arguments)
			slog.Info("starting dedicated server", "server", s.Name, "command", spec.String())
			if err := app.StartProcess(ctx, spec); err != nil {
				return launchError(spec, err)
			}
		}
	}

	spec := launch.Client(gameDir, cfg.Launcher.Executable, cfg.Launcher.Wrapper, cfg.Launcher.Arguments, passthrough)
	slog.Info("launching Northstar", "command", spec.String())
	if err := app.RunProcess(ctx, spec); err != nil {
		return launchError(spec, err)
	}
	return nil
}

func launchError(spec launch.Spec, err error) error {
	return issue.NewErrorContext().
		WithOperation("launch " + spec.Name).
		WithResource(spec.String()).
		WithSuggestion("Check launcher.executable and launcher.wrapper in config.cue").
		WithIssue(issue.LaunchFailedId).
		Wrap(err).
		BuildError()
}
