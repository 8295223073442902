// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/northstarmanager/nsm/internal/config"
	"github.com/northstarmanager/nsm/internal/issue"
	"github.com/northstarmanager/nsm/internal/release"
	"github.com/northstarmanager/nsm/internal/selfupdate"
	"github.com/northstarmanager/nsm/internal/tui"
	"github.com/northstarmanager/nsm/internal/updater"
)

const (
	flagUpdateAll           = "update-all"
	flagUpdateAllExceptSelf = "update-all-except-self"
)

type (
	// updateFlags select which packages are reinstalled regardless of their
	// last update time.
	updateFlags struct {
		all           bool
		allExceptSelf bool
		servers       bool
		client        bool
		checkOnly     bool
		notes         bool
	}

	// runParams captures one invocation of the update pass.
	runParams struct {
		rootFlags
		update      updateFlags
		launch      bool
		servers     bool
		passthrough []string
	}
)

func (f *updateFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.all, flagUpdateAll, false, "reinstall every package, nsm included")
	cmd.Flags().BoolVar(&f.allExceptSelf, flagUpdateAllExceptSelf, false, "reinstall every package except nsm")
	cmd.Flags().BoolVar(&f.servers, "update-servers", false, "reinstall the packages of every dedicated server")
	cmd.Flags().BoolVar(&f.client, "update-client", false, "reinstall Northstar and the client mods")
	cmd.Flags().BoolVar(&f.checkOnly, "check-only", false, "report available updates without installing")
	cmd.Flags().BoolVar(&f.notes, "notes", false, "print release notes of the updates found")
}

// policy maps the flags to a force policy and force groups.
func (f updateFlags) policy() (release.ForcePolicy, []updater.Group) {
	force := release.ForceNone
	switch {
	case f.all:
		force = release.ForceAll
	case f.allExceptSelf:
		force = release.ForceAllExceptSelf
	}

	var groups []updater.Group
	if f.client {
		groups = append(groups, updater.GroupClient)
	}
	if f.servers {
		groups = append(groups, updater.GroupServer)
	}
	return force, groups
}

func newUpdateCommand(app *App, flags *rootFlags) *cobra.Command {
	var upd updateFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update packages without launching the game",
		Example: `  # Check what would change
  nsm update --check-only

  # Reinstall the mods of every dedicated server
  nsm update --update-servers`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runUpdate(cmd.Context(), runParams{rootFlags: *flags, update: upd})
		},
	}
	upd.register(cmd)
	return cmd
}

// runUpdate is the update pass followed by the optional launch, separated
// from Cobra for testability.
//
// Flow:
//  1. Load config.cue and check the game directory.
//  2. Take the install lock.
//  3. Run the update pass and copy the new install times into the config.
//  4. Save the config unless in check-only mode.
//  5. Print the summary and, with --notes, the release notes.
//  6. If nsm replaced itself, start the deferred action and stop. Otherwise
//     launch the game.
func (app *App) runUpdate(ctx context.Context, p runParams) error {
	loaded, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: p.configPath})
	if err != nil {
		return err
	}
	cfg := loaded.Config
	setupLogging(app.stderr, string(cfg.Manager.LogLevel), p.verbose)

	if err := config.CheckGameDir(loaded.GameDir); err != nil {
		return err
	}

	lock, err := updater.AcquireLock(loaded.GameDir)
	if err != nil {
		return lockError(loaded.GameDir, err)
	}
	defer lock.Release()

	target := config.ManagerPath(cfg, loaded.GameDir)
	skipSelf := !app.IsSelf(target)
	if skipSelf {
		slog.Debug("not running from the configured location, skipping self update", "target", target)
	}
	binding := config.BuildPlan(cfg, loaded.GameDir, config.PlanOptions{SkipSelf: skipSelf})

	force, groups := p.update.policy()
	coord := selfupdate.NewCoordinator(
		selfupdate.WithWaitSeconds(cfg.Manager.WaitSeconds),
		selfupdate.WithProgress(app.Progress),
	)
	orch := updater.New(app.NewOpener(loaded.Token), app.Prompter, updater.Options{
		Force:          force,
		ForceGroups:    groups,
		CheckOnly:      p.update.checkOnly,
		RelaunchArgs:   relaunchArgs(app.args),
		ModsSubpath:    cfg.Manager.ModsSubpath,
		ReservedPrefix: cfg.Manager.ReservedPrefix,
		Progress:       app.Progress,
		RetryDelay:     time.Duration(cfg.Manager.RetryDelay) * time.Second,
	}, updater.WithCoordinator(coord))

	out, runErr := orch.Run(ctx, binding.Plan)
	binding.Commit()

	if !p.update.checkOnly {
		if err := config.Save(loaded.Path, cfg); err != nil {
			return issue.NewErrorContext().
				WithOperation("save configuration").
				WithResource(loaded.Path).
				WithIssue(issue.PermissionDeniedId).
				Wrap(err).
				BuildError()
		}
		if !loaded.Found {
			slog.Info("wrote default configuration", "path", loaded.Path)
		}
	}

	app.report(out.Results, p.update)

	if runErr != nil {
		return updateError(runErr)
	}

	if out.Halted {
		for _, a := range out.Actions {
			if err := app.StartDeferred(a); err != nil {
				return issue.WrapWithOperation(err, "start the nsm replacement")
			}
		}
		fmt.Fprintln(app.stdout, WarningStyle.Render("nsm was updated and restarts in a few seconds."))
		return nil
	}
	if out.Aborted {
		slog.Warn("update pass aborted after a rate limit, remaining packages were not checked")
	}

	if !p.launch || p.update.checkOnly {
		return nil
	}
	// The game runs for hours; another nsm may update meanwhile.
	lock.Release()
	return app.launchGame(ctx, cfg, loaded.GameDir, p.servers, p.passthrough)
}

// report prints the per-package summary and optionally the release notes.
func (app *App) report(results []updater.Result, f updateFlags) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(app.stdout, tui.Summary(results))

	if !f.notes {
		return
	}
	notes, err := tui.ReleaseNotes(results, noteStyle(app.stdout), 0)
	if err != nil {
		slog.Warn("cannot render release notes", "error", err)
		return
	}
	fmt.Fprint(app.stdout, notes)
}

// relaunchArgs returns the arguments for the replaced nsm. --update-all
// would replace nsm again, so it is narrowed to everything else.
func relaunchArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if a == "--" {
			return append(out, args[i:]...)
		}
		switch {
		case a == "--"+flagUpdateAll:
			a = "--" + flagUpdateAllExceptSelf
		case strings.HasPrefix(a, "--"+flagUpdateAll+"="):
			a = "--" + flagUpdateAllExceptSelf + strings.TrimPrefix(a, "--"+flagUpdateAll)
		}
		out = append(out, a)
	}
	return out
}

func lockError(dir string, err error) error {
	if errors.Is(err, updater.ErrLocked) {
		return issue.NewErrorContext().
			WithOperation("lock the game directory").
			WithResource(dir).
			WithSuggestion("Wait for the other nsm to finish").
			WithIssue(issue.InstallLockedId).
			Wrap(err).
			BuildError()
	}
	return issue.WrapWithContext(err, "lock the game directory", dir)
}

// updateError attaches remediation to errors that ended the pass.
func updateError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &ExitError{Code: 130, Err: err}
	}
	ctx := issue.NewErrorContext().WithOperation("update packages").Wrap(err)
	if errors.Is(err, fs.ErrPermission) {
		ctx = ctx.WithSuggestion("Close the game and any program using its files").
			WithIssue(issue.PermissionDeniedId)
	}
	return ctx.BuildError()
}

func noteStyle(w io.Writer) string {
	if isTerminal(w) {
		return ""
	}
	return "notty"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
