// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for nsm.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/northstarmanager/nsm/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	//nolint:gochecknoglobals // test seam
	readBuildInfo = debug.ReadBuildInfo
)

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	verbose    bool
	configPath string
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version != "dev" {
		return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
	}
	// go install stamps the module version.
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev (built from source)"
}

// NewRootCommand builds the nsm command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var (
		flags rootFlags
		upd   updateFlags
		lf    launchFlags
	)

	rootCmd := &cobra.Command{
		Use:   "nsm [flags] [-- game arguments]",
		Short: "Keep Northstar and its mods up to date, then launch the game",
		Long: TitleStyle.Render("nsm") + SubtitleStyle.Render(" - Northstar package manager") + `

nsm updates itself, the Northstar client and every configured mod from
GitHub releases or Thunderstore, rewrites dedicated server configs and
finally starts NorthstarLauncher. Run it from the Titanfall 2 directory.

` + SubtitleStyle.Render("Examples:") + `
  nsm                          Update everything that is out of date, then play
  nsm --check-only --notes     Show available updates and their release notes
  nsm --update-all             Reinstall every package
  nsm -- +map mp_glitch        Pass arguments through to the game
  nsm config import            Convert manager_config.yaml to config.cue`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runUpdate(cmd.Context(), runParams{
				rootFlags:   flags,
				update:      upd,
				launch:      !lf.noLaunch,
				servers:     lf.servers,
				passthrough: passthroughArgs(cmd, args),
			})
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is ./config.cue)")
	upd.register(rootCmd)
	lf.register(rootCmd, true)

	rootCmd.AddCommand(newUpdateCommand(app, &flags))
	rootCmd.AddCommand(newLaunchCommand(app, &flags))
	rootCmd.AddCommand(newConfigCommand(app, &flags))

	return rootCmd
}

// passthroughArgs returns the arguments after "--".
func passthroughArgs(cmd *cobra.Command, args []string) []string {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[dash:]
	}
	return args
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// errorHandler prints err with its remediation guide. ExitErrors without a
// cause were already reported by the command.
func errorHandler(w io.Writer, _ fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, false))
	if guide := issue.GuideFor(err); guide != nil {
		if rendered, renderErr := guide.Render(guideStyle()); renderErr == nil {
			fmt.Fprint(w, rendered)
		}
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

func guideStyle() string {
	if isTerminal(os.Stderr) {
		return "dark"
	}
	return "notty"
}
