// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	// SourceGitHub pins a package to GitHub releases.
	SourceGitHub Source = "github"
	// SourceThunderstore pins a package to Thunderstore.
	SourceThunderstore Source = "thunderstore"

	// LogLevelDebug enables debug output.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn only shows warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError only shows errors.
	LogLevelError LogLevel = "error"

	// DefaultModFile anchors a mod inside its archive.
	DefaultModFile = "mod.json"
	// DefaultModsSubpath is where Northstar loads mods from, relative to the
	// game directory.
	DefaultModsSubpath = "R2Northstar/mods"
	// DefaultReservedPrefix marks mod folders shipped with Northstar itself.
	DefaultReservedPrefix = "Northstar."
	// DefaultLauncher is the Northstar client executable.
	DefaultLauncher = "NorthstarLauncher.exe"
	// DefaultRetryDelay is the wait, in seconds, after a rate limit.
	DefaultRetryDelay = 60
	// DefaultWaitSeconds is how long a deferred self-replacement waits for
	// nsm to exit.
	DefaultWaitSeconds = 3

	// GameExecutable marks a Titanfall 2 installation.
	GameExecutable = "Titanfall2.exe"

	// legacyTimeLayout is the timestamp format without zone written by
	// older manager versions.
	legacyTimeLayout = "2006-01-02T15:04:05"
)

var (
	// ErrInvalidSource is returned when a Source value is not recognized.
	ErrInvalidSource = errors.New("invalid source")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidPackage is the sentinel error wrapped by InvalidPackageError.
	ErrInvalidPackage = errors.New("invalid package")
	// ErrInvalidServer is the sentinel error wrapped by InvalidServerError.
	ErrInvalidServer = errors.New("invalid server")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrGameDirNotFound is returned when the game directory does not hold
	// a Titanfall 2 installation.
	ErrGameDirNotFound = errors.New("titanfall 2 installation not found")
)

type (
	// Source pins a package to one hosting backend. Empty means unknown;
	// the first update pass probes for it and stores the result.
	Source string

	// InvalidSourceError is returned when a Source value is not recognized.
	// It wraps ErrInvalidSource for errors.Is() compatibility.
	InvalidSourceError struct {
		Value Source
	}

	// LogLevel selects the minimum level of log output.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidPackageError collects the field errors of one package entry.
	InvalidPackageError struct {
		Name        string
		FieldErrors []error
	}

	// InvalidServerError collects the field errors of one server entry.
	InvalidServerError struct {
		Name        string
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// PackageConfig is the persisted state of one package.
	PackageConfig struct {
		// Name labels the package in logs. Defaults to the repository name.
		Name       string `json:"name,omitempty" mapstructure:"name"`
		Repository string `json:"repository" mapstructure:"repository"`
		Source     Source `json:"source,omitempty" mapstructure:"source"`
		// LastUpdate is the RFC 3339 publish time of the installed release.
		LastUpdate string `json:"last_update,omitempty" mapstructure:"last_update"`
		// File is the anchor file. Defaults to mod.json.
		File string `json:"file,omitempty" mapstructure:"file"`
		// InstallDir is relative to the game directory.
		InstallDir       string   `json:"install_dir,omitempty" mapstructure:"install_dir"`
		ExcludeFiles     []string `json:"exclude_files,omitempty" mapstructure:"exclude_files"`
		IgnorePrerelease bool     `json:"ignore_prerelease" mapstructure:"ignore_prerelease"`
		IgnoreUpdates    bool     `json:"ignore_updates" mapstructure:"ignore_updates"`
	}

	// ManagerConfig is the nsm package plus settings for the run itself.
	ManagerConfig struct {
		PackageConfig `mapstructure:",squash"`
		// GameDir overrides the working directory as the game directory.
		// A relative value is resolved against the config file's directory.
		GameDir        string   `json:"game_dir,omitempty" mapstructure:"game_dir"`
		ModsSubpath    string   `json:"mods_subpath" mapstructure:"mods_subpath"`
		ReservedPrefix string   `json:"reserved_prefix" mapstructure:"reserved_prefix"`
		LogLevel       LogLevel `json:"log_level" mapstructure:"log_level"`
		// RetryDelay is in seconds.
		RetryDelay  int `json:"retry_delay" mapstructure:"retry_delay"`
		WaitSeconds int `json:"wait_seconds" mapstructure:"wait_seconds"`
	}

	// GitHubConfig configures GitHub API access.
	GitHubConfig struct {
		// Token raises the API rate limit. GITHUB_TOKEN overrides it.
		Token string `json:"token,omitempty" mapstructure:"token"`
	}

	// LauncherConfig describes how the game client is started.
	LauncherConfig struct {
		Executable string   `json:"executable" mapstructure:"executable"`
		Arguments  []string `json:"arguments" mapstructure:"arguments"`
		// Wrapper is prepended to the command line, e.g. ["wine"].
		Wrapper []string `json:"wrapper,omitempty" mapstructure:"wrapper"`
	}

	// ConvarConfig is one server config override.
	ConvarConfig struct {
		Name  string `json:"name" mapstructure:"name"`
		Value string `json:"value" mapstructure:"value"`
	}

	// ServerConfig describes one dedicated server installation.
	ServerConfig struct {
		Name       string   `json:"name" mapstructure:"name"`
		Enabled    bool     `json:"enabled" mapstructure:"enabled"`
		Dir        string   `json:"dir" mapstructure:"dir"`
		Executable string   `json:"executable,omitempty" mapstructure:"executable"`
		Arguments  []string `json:"arguments,omitempty" mapstructure:"arguments"`
		// ConfigFile is relative to Dir.
		ConfigFile string         `json:"config_file,omitempty" mapstructure:"config_file"`
		Convars    []ConvarConfig `json:"convars,omitempty" mapstructure:"convars"`
		// Northstar is the server's own runtime copy, if nsm manages it.
		Northstar *PackageConfig  `json:"northstar,omitempty" mapstructure:"northstar"`
		Mods      []PackageConfig `json:"mods,omitempty" mapstructure:"mods"`
	}

	// Config holds the application configuration.
	Config struct {
		Manager   ManagerConfig   `json:"manager" mapstructure:"manager"`
		GitHub    GitHubConfig    `json:"github" mapstructure:"github"`
		Northstar PackageConfig   `json:"northstar" mapstructure:"northstar"`
		Launcher  LauncherConfig  `json:"launcher" mapstructure:"launcher"`
		Mods      []PackageConfig `json:"mods" mapstructure:"mods"`
		Servers   []ServerConfig  `json:"servers" mapstructure:"servers"`
	}
)

// Error implements the error interface.
func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("invalid source %q (valid: github, thunderstore)", e.Value)
}

// Unwrap returns ErrInvalidSource for errors.Is() compatibility.
func (e *InvalidSourceError) Unwrap() error { return ErrInvalidSource }

// IsValid returns whether the Source is empty or a known backend.
func (s Source) IsValid() (bool, []error) {
	switch s {
	case "", SourceGitHub, SourceThunderstore:
		return true, nil
	default:
		return false, []error{&InvalidSourceError{Value: s}}
	}
}

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// IsValid returns whether the LogLevel is one of the defined levels.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface.
func (e *InvalidPackageError) Error() string {
	return fmt.Sprintf("invalid package %q: %d field error(s)", e.Name, len(e.FieldErrors))
}

// Unwrap returns ErrInvalidPackage for errors.Is() compatibility.
func (e *InvalidPackageError) Unwrap() error { return ErrInvalidPackage }

// Error implements the error interface.
func (e *InvalidServerError) Error() string {
	return fmt.Sprintf("invalid server %q: %d field error(s)", e.Name, len(e.FieldErrors))
}

// Unwrap returns ErrInvalidServer for errors.Is() compatibility.
func (e *InvalidServerError) Unwrap() error { return ErrInvalidServer }

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		msgs = append(msgs, fe.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// ManagerFileName is the nsm executable name on the current platform.
func ManagerFileName() string {
	if runtime.GOOS == "windows" {
		return "nsm.exe"
	}
	return "nsm"
}

// DefaultConfig returns the configuration used when no config file exists:
// nsm itself, the Northstar runtime and the client launcher.
func DefaultConfig() *Config {
	return &Config{
		Manager: ManagerConfig{
			PackageConfig: PackageConfig{
				Name:             "nsm",
				Repository:       "northstarmanager/nsm",
				Source:           SourceGitHub,
				File:             ManagerFileName(),
				InstallDir:       ".",
				IgnorePrerelease: true,
			},
			ModsSubpath:    DefaultModsSubpath,
			ReservedPrefix: DefaultReservedPrefix,
			LogLevel:       LogLevelInfo,
			RetryDelay:     DefaultRetryDelay,
			WaitSeconds:    DefaultWaitSeconds,
		},
		Northstar: DefaultNorthstar(),
		Launcher: LauncherConfig{
			Executable: DefaultLauncher,
			Arguments:  []string{"-multiple"},
		},
	}
}

// DefaultNorthstar returns the Northstar runtime package installed into the
// game directory. The startup argument files are user data.
func DefaultNorthstar() PackageConfig {
	return PackageConfig{
		Name:             "Northstar",
		Repository:       "R2Northstar/Northstar",
		Source:           SourceGitHub,
		File:             DefaultLauncher,
		InstallDir:       ".",
		ExcludeFiles:     []string{"ns_startup_args.txt", "ns_startup_args_dedi.txt"},
		IgnorePrerelease: true,
	}
}

// DisplayName returns Name, or the repository name when Name is empty.
func (p PackageConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if _, name, ok := strings.Cut(p.Repository, "/"); ok {
		return name
	}
	return p.Repository
}

// LastUpdateTime parses LastUpdate. Empty and unparseable values are the
// zero time, which makes the package eligible again.
func (p PackageConfig) LastUpdateTime() time.Time {
	if p.LastUpdate == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, p.LastUpdate); err == nil {
		return t
	}
	if t, err := time.Parse(legacyTimeLayout, p.LastUpdate); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// SetLastUpdate stores t in RFC 3339 form. The zero time clears the field.
func (p *PackageConfig) SetLastUpdate(t time.Time) {
	if t.IsZero() {
		p.LastUpdate = ""
		return
	}
	p.LastUpdate = t.UTC().Format(time.RFC3339)
}

// Validate checks one package entry.
func (p PackageConfig) Validate() error {
	var errs []error
	if p.Repository == "" {
		errs = append(errs, errors.New("repository: must not be empty"))
	} else if owner, name, ok := strings.Cut(p.Repository, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		errs = append(errs, fmt.Errorf("repository: %q is not of the form owner/name", p.Repository))
	}
	if ok, fieldErrs := p.Source.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if p.LastUpdate != "" && p.LastUpdateTime().IsZero() {
		errs = append(errs, fmt.Errorf("last_update: %q is not an RFC 3339 time", p.LastUpdate))
	}
	for _, f := range p.ExcludeFiles {
		if filepath.IsAbs(f) || strings.HasPrefix(filepath.ToSlash(filepath.Clean(f)), "../") {
			errs = append(errs, fmt.Errorf("exclude_files: %q must stay inside the install directory", f))
		}
	}
	if len(errs) > 0 {
		return &InvalidPackageError{Name: p.DisplayName(), FieldErrors: errs}
	}
	return nil
}

// Validate checks one server entry and its packages.
func (s ServerConfig) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name: must not be empty"))
	}
	if strings.TrimSpace(s.Dir) == "" {
		errs = append(errs, errors.New("dir: must not be empty"))
	}
	for _, cv := range s.Convars {
		if cv.Name == "" || strings.ContainsAny(cv.Name, " \t\"") {
			errs = append(errs, fmt.Errorf("convars: invalid name %q", cv.Name))
		}
	}
	if s.Northstar != nil {
		if err := s.Northstar.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, validatePackages("mods", s.Mods)...)
	if len(errs) > 0 {
		return &InvalidServerError{Name: s.Name, FieldErrors: errs}
	}
	return nil
}

// Validate checks the constraints the CUE schema cannot express: names
// unique within a group and well-formed package fields.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Manager.PackageConfig.Validate(); err != nil {
		errs = append(errs, err)
	}
	if ok, fieldErrs := c.Manager.LogLevel.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if err := c.Northstar.Validate(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Launcher.Executable) == "" {
		errs = append(errs, errors.New("launcher.executable: must not be empty"))
	}

	errs = append(errs, validatePackages("mods", c.Mods)...)

	seenServers := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
		key := strings.ToLower(s.Name)
		if seenServers[key] {
			errs = append(errs, fmt.Errorf("servers[%d]: duplicate server name %q", i, s.Name))
		}
		seenServers[key] = true
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// validatePackages checks each entry and that display names are unique,
// since results and logs identify packages by name.
func validatePackages(field string, pkgs []PackageConfig) []error {
	var errs []error
	seen := make(map[string]int, len(pkgs))
	for i, p := range pkgs {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s[%d]: %w", field, i, err))
		}
		name := strings.ToLower(p.DisplayName())
		if first, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s[%d]: duplicate package name %q (same as %s[%d])", field, i, p.DisplayName(), field, first))
			continue
		}
		seen[name] = i
	}
	return errs
}
