// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/charmbracelet/fang"
	"github.com/google/go-cmp/cmp"

	"github.com/northstarmanager/nsm/internal/issue"
	"github.com/northstarmanager/nsm/internal/release"
	"github.com/northstarmanager/nsm/internal/updater"
)

// TestGetVersionString swaps package variables and must not run in parallel.
func TestGetVersionString(t *testing.T) {
	origVersion, origCommit, origDate, origInfo := Version, Commit, BuildDate, readBuildInfo
	t.Cleanup(func() {
		Version, Commit, BuildDate, readBuildInfo = origVersion, origCommit, origDate, origInfo
	})

	noInfo := func() (*debug.BuildInfo, bool) { return nil, false }
	moduleInfo := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "v0.3.0"}}, true
	}
	develInfo := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true
	}

	tests := []struct {
		name    string
		version string
		info    func() (*debug.BuildInfo, bool)
		want    string
	}{
		{"ldflags", "v1.2.3", noInfo, "v1.2.3 (commit: abc123, built: 2026-01-02)"},
		{"go install", "dev", moduleInfo, "v0.3.0"},
		{"devel build", "dev", develInfo, "dev (built from source)"},
		{"no build info", "dev", noInfo, "dev (built from source)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, BuildDate, readBuildInfo = tt.version, "abc123", "2026-01-02", tt.info
			if got := getVersionString(); got != tt.want {
				t.Errorf("getVersionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdateFlags_Policy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		flags      updateFlags
		wantForce  release.ForcePolicy
		wantGroups []updater.Group
	}{
		{"none", updateFlags{}, release.ForceNone, nil},
		{"all", updateFlags{all: true}, release.ForceAll, nil},
		{"all except self", updateFlags{allExceptSelf: true}, release.ForceAllExceptSelf, nil},
		{"all wins", updateFlags{all: true, allExceptSelf: true}, release.ForceAll, nil},
		{"client", updateFlags{client: true}, release.ForceNone, []updater.Group{updater.GroupClient}},
		{
			"client and servers",
			updateFlags{client: true, servers: true},
			release.ForceNone,
			[]updater.Group{updater.GroupClient, updater.GroupServer},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			force, groups := tt.flags.policy()
			if force != tt.wantForce {
				t.Errorf("force = %v, want %v", force, tt.wantForce)
			}
			if diff := cmp.Diff(tt.wantGroups, groups); diff != "" {
				t.Errorf("groups mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRelaunchArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"empty", nil, []string{}},
		{"untouched", []string{"--check-only", "-v"}, []string{"--check-only", "-v"}},
		{"update all", []string{"--update-all", "-v"}, []string{"--update-all-except-self", "-v"}},
		{"with value", []string{"--update-all=true"}, []string{"--update-all-except-self=true"}},
		{"already narrowed", []string{"--update-all-except-self"}, []string{"--update-all-except-self"}},
		{
			"passthrough kept",
			[]string{"--update-all", "--", "--update-all"},
			[]string{"--update-all-except-self", "--", "--update-all"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(tt.want, relaunchArgs(tt.args)); diff != "" {
				t.Errorf("relaunchArgs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	bare := &ExitError{Code: 3}
	if bare.Error() != "exit status 3" {
		t.Errorf("Error() = %q", bare.Error())
	}

	cause := errors.New("boom")
	wrapped := &ExitError{Code: 1, Err: cause}
	if !errors.Is(wrapped, cause) {
		t.Error("ExitError should unwrap to its cause")
	}
}

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	t.Run("reported exit is silent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		errorHandler(&buf, fang.Styles{}, &ExitError{Code: 1})
		if buf.Len() != 0 {
			t.Errorf("output = %q, want nothing", buf.String())
		}
	})

	t.Run("actionable error gets its guide", func(t *testing.T) {
		t.Parallel()

		err := issue.NewErrorContext().
			WithOperation("lock the game directory").
			WithIssue(issue.InstallLockedId).
			Wrap(updater.ErrLocked).
			BuildError()

		var buf bytes.Buffer
		errorHandler(&buf, fang.Styles{}, err)
		out := buf.String()
		if !strings.Contains(out, "lock the game directory") {
			t.Errorf("output missing operation:\n%s", out)
		}
		if !strings.Contains(out, "already running") {
			t.Errorf("output missing rendered guide:\n%s", out)
		}
	})
}

func TestNewRootCommand_Flags(t *testing.T) {
	t.Parallel()

	root := NewRootCommand(NewApp(Dependencies{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Args: []string{}}))
	for _, name := range []string{
		"update-all", "update-all-except-self", "update-servers", "update-client",
		"check-only", "notes", "no-launch", "servers",
	} {
		if root.Flags().Lookup(name) == nil {
			t.Errorf("root command lacks --%s", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("root command lacks persistent --config")
	}

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"update", "launch", "config"} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Errorf("subcommand %q missing, have %v", want, names)
		}
	}
}
