// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/northstarmanager/nsm/internal/config"
	"github.com/northstarmanager/nsm/internal/issue"
)

// errConfigExists is returned by init and import when they would overwrite
// a config file without --force.
var errConfigExists = errors.New("config file already exists")

// newConfigCommand creates the `nsm config` command tree.
func newConfigCommand(app *App, flags *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage nsm configuration",
		Long: `Manage nsm configuration.

Configuration is stored in config.cue next to Titanfall2.exe, or in the
file named by --config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var defaults bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.showConfig(cmd.Context(), flags.configPath, defaults)
		},
	}
	showCmd.Flags().BoolVar(&defaults, "defaults", false, "print the built-in defaults instead")
	cfgCmd.AddCommand(showCmd)

	var forceInit bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default config.cue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.initConfig(flags.configPath, forceInit)
		},
	}
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing config file")
	cfgCmd.AddCommand(initCmd)

	var forceImport bool
	importCmd := &cobra.Command{
		Use:   "import [manager_config.yaml]",
		Short: "Convert a manager_config.yaml from older managers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := config.LegacyFileName
			if len(args) > 0 {
				src = args[0]
			}
			return app.importConfig(src, flags.configPath, forceImport)
		},
	}
	importCmd.Flags().BoolVar(&forceImport, "force", false, "overwrite an existing config file")
	cfgCmd.AddCommand(importCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.showConfigPath(flags.configPath)
		},
	})

	return cfgCmd
}

func (app *App) showConfig(ctx context.Context, configPath string, defaults bool) error {
	if defaults {
		fmt.Fprint(app.stdout, config.GenerateCUE(config.DefaultConfig()))
		return nil
	}

	loaded, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: configPath})
	if err != nil {
		return err
	}
	if loaded.Found {
		fmt.Fprintf(app.stderr, "%s: %s\n", CmdStyle.Render("Config file"), loaded.Path)
	} else {
		fmt.Fprintf(app.stderr, "%s: %s\n", CmdStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprint(app.stdout, config.GenerateCUE(loaded.Config))
	return nil
}

func (app *App) initConfig(configPath string, force bool) error {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}

	if force {
		err = config.Save(path, config.DefaultConfig())
	} else {
		var created bool
		created, err = config.CreateDefaultConfig(path)
		if err == nil && !created {
			err = fmt.Errorf("%w: %s", errConfigExists, path)
		}
	}
	if err != nil {
		return configWriteError(path, err)
	}

	fmt.Fprintln(app.stdout, SuccessStyle.Render("Created "+path))
	return nil
}

func (app *App) importConfig(src, configPath string, force bool) error {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}
	if !force {
		if _, statErr := os.Stat(path); statErr == nil {
			return configWriteError(path, fmt.Errorf("%w: %s", errConfigExists, path))
		}
	}

	f, err := os.Open(src)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("read legacy configuration").
			WithResource(src).
			WithSuggestion("Pass the path of manager_config.yaml as an argument").
			Wrap(err).
			BuildError()
	}
	defer f.Close()

	cfg, err := config.ImportLegacy(f)
	if err != nil {
		return issue.WrapWithContext(err, "import legacy configuration", src)
	}
	if err := cfg.Validate(); err != nil {
		return issue.NewErrorContext().
			WithOperation("import legacy configuration").
			WithResource(src).
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	if err := config.Save(path, cfg); err != nil {
		return configWriteError(path, err)
	}

	fmt.Fprintf(app.stdout, "%s %s %s\n", SuccessStyle.Render("Imported"), src, SuccessStyle.Render("into "+path))
	return nil
}

func (app *App) showConfigPath(configPath string) error {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, path)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(app.stderr, SubtitleStyle.Render("(file does not exist, defaults are used)"))
	}
	return nil
}

// resolveConfigPath returns the explicit path or config.cue in the working
// directory.
func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return filepath.Abs(configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return config.DefaultPath(wd), nil
}

func configWriteError(path string, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("write configuration").
		WithResource(path).
		Wrap(err)
	switch {
	case errors.Is(err, errConfigExists):
		ctx = ctx.WithSuggestion("Use --force to overwrite it")
	case errors.Is(err, fs.ErrPermission):
		ctx = ctx.WithIssue(issue.PermissionDeniedId)
	}
	return ctx.BuildError()
}
