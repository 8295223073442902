// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/northstarmanager/nsm/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "nsm"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// TokenEnv overrides github.token.
	TokenEnv = "GITHUB_TOKEN"
)

//go:embed config_schema.cue
var configSchema string

// Loaded is a configuration together with where it came from.
type Loaded struct {
	Config *Config
	// Path is where Save writes the configuration back.
	Path string
	// Found is false when no config file existed and defaults were used.
	Found bool
	// GameDir is the absolute Titanfall 2 directory.
	GameDir string
	// Token is the GitHub token with GITHUB_TOKEN applied. It is kept out
	// of Config so the environment value is never written to disk.
	Token string
}

// DefaultPath returns the config file path inside gameDir.
func DefaultPath(gameDir string) string {
	return filepath.Join(gameDir, ConfigFileName+"."+ConfigFileExt)
}

// loadWithOptions performs option-driven config loading.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	baseDir := opts.GameDir
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		baseDir = wd
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	path := opts.ConfigFilePath
	explicit := path != ""
	if !explicit {
		path = DefaultPath(baseDir)
	}

	found := fileExists(path)
	switch {
	case found:
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare it with 'nsm config show --defaults'").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	case explicit:
		return nil, issue.NewErrorContext().
			WithOperation("load configuration").
			WithResource(path).
			WithSuggestion("Verify the file path is correct").
			WithSuggestion("Run 'nsm config init' to create a config file").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(fmt.Errorf("config file not found: %s", path)).
			BuildError()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Give every mod and server a unique name").
			WithSuggestion("Use owner/name for repository values").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	// Bound after Unmarshal so Config keeps the file's token.
	if err := v.BindEnv("github.token", TokenEnv); err != nil {
		return nil, fmt.Errorf("binding %s: %w", TokenEnv, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	return &Loaded{
		Config:  &cfg,
		Path:    absPath,
		Found:   found,
		GameDir: resolveGameDir(cfg.Manager.GameDir, baseDir, filepath.Dir(absPath)),
		Token:   v.GetString("github.token"),
	}, nil
}

func setDefaults(v *viper.Viper, defaults *Config) {
	m := defaults.Manager
	v.SetDefault("manager.name", m.Name)
	v.SetDefault("manager.repository", m.Repository)
	v.SetDefault("manager.source", string(m.Source))
	v.SetDefault("manager.file", m.File)
	v.SetDefault("manager.install_dir", m.InstallDir)
	v.SetDefault("manager.ignore_prerelease", m.IgnorePrerelease)
	v.SetDefault("manager.ignore_updates", m.IgnoreUpdates)
	v.SetDefault("manager.mods_subpath", m.ModsSubpath)
	v.SetDefault("manager.reserved_prefix", m.ReservedPrefix)
	v.SetDefault("manager.log_level", string(m.LogLevel))
	v.SetDefault("manager.retry_delay", m.RetryDelay)
	v.SetDefault("manager.wait_seconds", m.WaitSeconds)

	n := defaults.Northstar
	v.SetDefault("northstar.name", n.Name)
	v.SetDefault("northstar.repository", n.Repository)
	v.SetDefault("northstar.source", string(n.Source))
	v.SetDefault("northstar.file", n.File)
	v.SetDefault("northstar.install_dir", n.InstallDir)
	v.SetDefault("northstar.exclude_files", n.ExcludeFiles)
	v.SetDefault("northstar.ignore_prerelease", n.IgnorePrerelease)
	v.SetDefault("northstar.ignore_updates", n.IgnoreUpdates)

	v.SetDefault("launcher.executable", defaults.Launcher.Executable)
	v.SetDefault("launcher.arguments", defaults.Launcher.Arguments)
}

// resolveGameDir picks manager.game_dir when set (relative to the config
// file) and the working directory otherwise.
func resolveGameDir(configured, baseDir, configDir string) string {
	dir := baseDir
	if configured != "" {
		dir = configured
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(configDir, dir)
		}
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return filepath.Clean(dir)
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Concrete(false) is used because every field is optional; the merge keeps
// the defaults for anything the file leaves out.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := checkFileSize(data, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// CheckGameDir reports ErrGameDirNotFound unless dir holds Titanfall2.exe.
func CheckGameDir(dir string) error {
	if fileExists(filepath.Join(dir, GameExecutable)) {
		return nil
	}
	return issue.NewErrorContext().
		WithOperation("locate Titanfall 2").
		WithResource(dir).
		WithSuggestion("Run nsm from the Titanfall 2 directory").
		WithSuggestion("Or set manager.game_dir in config.cue").
		WithIssue(issue.GameDirNotFoundId).
		Wrap(fmt.Errorf("%w: no %s in %s", ErrGameDirNotFound, GameExecutable, dir)).
		BuildError()
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to path unless a
// file already exists there. It reports whether a file was written.
func CreateDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking config file: %w", err)
	}
	if err := Save(path, DefaultConfig()); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes cfg to path as CUE. The file is replaced atomically so an
// interrupted run never leaves a truncated config behind.
func Save(path string, cfg *Config) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.cue")
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.WriteString(GenerateCUE(cfg)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// nsm configuration\n")
	sb.WriteString("// nsm rewrites this file after every run; comments are not kept.\n\n")

	sb.WriteString("manager: {\n")
	writePackageFields(&sb, "\t", cfg.Manager.PackageConfig)
	if cfg.Manager.GameDir != "" {
		fmt.Fprintf(&sb, "\tgame_dir: %q\n", cfg.Manager.GameDir)
	}
	fmt.Fprintf(&sb, "\tmods_subpath: %q\n", cfg.Manager.ModsSubpath)
	fmt.Fprintf(&sb, "\treserved_prefix: %q\n", cfg.Manager.ReservedPrefix)
	fmt.Fprintf(&sb, "\tlog_level: %q\n", cfg.Manager.LogLevel)
	fmt.Fprintf(&sb, "\tretry_delay: %d\n", cfg.Manager.RetryDelay)
	fmt.Fprintf(&sb, "\twait_seconds: %d\n", cfg.Manager.WaitSeconds)
	sb.WriteString("}\n")

	if cfg.GitHub.Token != "" {
		fmt.Fprintf(&sb, "\ngithub: {\n\ttoken: %q\n}\n", cfg.GitHub.Token)
	}

	sb.WriteString("\nnorthstar: {\n")
	writePackageFields(&sb, "\t", cfg.Northstar)
	sb.WriteString("}\n")

	sb.WriteString("\nlauncher: {\n")
	fmt.Fprintf(&sb, "\texecutable: %q\n", cfg.Launcher.Executable)
	fmt.Fprintf(&sb, "\targuments: %s\n", cueList(cfg.Launcher.Arguments))
	if len(cfg.Launcher.Wrapper) > 0 {
		fmt.Fprintf(&sb, "\twrapper: %s\n", cueList(cfg.Launcher.Wrapper))
	}
	sb.WriteString("}\n")

	if len(cfg.Mods) > 0 {
		sb.WriteString("\nmods: [\n")
		writePackageList(&sb, "\t", cfg.Mods)
		sb.WriteString("]\n")
	}

	if len(cfg.Servers) > 0 {
		sb.WriteString("\nservers: [\n")
		for _, s := range cfg.Servers {
			writeServer(&sb, s)
		}
		sb.WriteString("]\n")
	}

	return sb.String()
}

func writeServer(sb *strings.Builder, s ServerConfig) {
	sb.WriteString("\t{\n")
	fmt.Fprintf(sb, "\t\tname: %q\n", s.Name)
	fmt.Fprintf(sb, "\t\tenabled: %v\n", s.Enabled)
	fmt.Fprintf(sb, "\t\tdir: %q\n", s.Dir)
	if s.Executable != "" {
		fmt.Fprintf(sb, "\t\texecutable: %q\n", s.Executable)
	}
	if len(s.Arguments) > 0 {
		fmt.Fprintf(sb, "\t\targuments: %s\n", cueList(s.Arguments))
	}
	if s.ConfigFile != "" {
		fmt.Fprintf(sb, "\t\tconfig_file: %q\n", s.ConfigFile)
	}
	if len(s.Convars) > 0 {
		sb.WriteString("\t\tconvars: [\n")
		for _, cv := range s.Convars {
			fmt.Fprintf(sb, "\t\t\t{name: %q, value: %q},\n", cv.Name, cv.Value)
		}
		sb.WriteString("\t\t]\n")
	}
	if s.Northstar != nil {
		sb.WriteString("\t\tnorthstar: {\n")
		writePackageFields(sb, "\t\t\t", *s.Northstar)
		sb.WriteString("\t\t}\n")
	}
	if len(s.Mods) > 0 {
		sb.WriteString("\t\tmods: [\n")
		writePackageList(sb, "\t\t\t", s.Mods)
		sb.WriteString("\t\t]\n")
	}
	sb.WriteString("\t},\n")
}

func writePackageList(sb *strings.Builder, indent string, pkgs []PackageConfig) {
	for _, p := range pkgs {
		sb.WriteString(indent + "{\n")
		writePackageFields(sb, indent+"\t", p)
		sb.WriteString(indent + "},\n")
	}
}

func writePackageFields(sb *strings.Builder, indent string, p PackageConfig) {
	if p.Name != "" {
		fmt.Fprintf(sb, "%sname: %q\n", indent, p.Name)
	}
	fmt.Fprintf(sb, "%srepository: %q\n", indent, p.Repository)
	if p.Source != "" {
		fmt.Fprintf(sb, "%ssource: %q\n", indent, p.Source)
	}
	if p.LastUpdate != "" {
		fmt.Fprintf(sb, "%slast_update: %q\n", indent, p.LastUpdate)
	}
	if p.File != "" {
		fmt.Fprintf(sb, "%sfile: %q\n", indent, p.File)
	}
	if p.InstallDir != "" {
		fmt.Fprintf(sb, "%sinstall_dir: %q\n", indent, p.InstallDir)
	}
	if len(p.ExcludeFiles) > 0 {
		fmt.Fprintf(sb, "%sexclude_files: %s\n", indent, cueList(p.ExcludeFiles))
	}
	fmt.Fprintf(sb, "%signore_prerelease: %v\n", indent, p.IgnorePrerelease)
	fmt.Fprintf(sb, "%signore_updates: %v\n", indent, p.IgnoreUpdates)
}

func cueList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, fmt.Sprintf("%q", it))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
