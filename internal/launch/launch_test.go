// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/northstarmanager/nsm/internal/testutil"
)

func TestClient(t *testing.T) {
	t.Parallel()

	s := Client("/game", "NorthstarLauncher.exe", nil, []string{"-multiple"}, []string{"+map", "mp_glitch"})
	if diff := cmp.Diff([]string{"-multiple", "+map", "mp_glitch"}, s.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if s.Dir != "/game" || s.Name != "client" {
		t.Errorf("unexpected spec %+v", s)
	}
}

func TestServer_AddsDedicatedOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"added", []string{"-port", "37015"}, []string{"-dedicated", "-port", "37015"}},
		{"already present", []string{"-port", "37015", "-Dedicated"}, []string{"-port", "37015", "-Dedicated"}},
		{"no args", nil, []string{"-dedicated"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := Server("alpha", "/srv/alpha", "NorthstarLauncher.exe", nil, tt.args)
			if diff := cmp.Diff(tt.want, s.Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSpec_Command(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "NorthstarLauncher.exe"), "")

	s := Spec{Dir: dir, Wrapper: []string{"wine"}, Executable: "NorthstarLauncher.exe", Args: []string{"-multiple"}}
	cmd, err := s.Command(context.Background())
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	want := []string{"wine", filepath.Join(dir, "NorthstarLauncher.exe"), "-multiple"}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
	if cmd.Dir != dir {
		t.Errorf("Dir = %q, want %q", cmd.Dir, dir)
	}
}

func TestSpec_CommandMissingExecutable(t *testing.T) {
	t.Parallel()

	_, err := Spec{Dir: t.TempDir(), Executable: "NorthstarLauncher.exe"}.Command(context.Background())
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("err = %v, want ErrExecutableNotFound", err)
	}
}

func TestSpec_String(t *testing.T) {
	t.Parallel()

	s := Spec{Executable: "NorthstarLauncher.exe", Args: []string{"-multiple", "+ns_server_name", "My Server"}}
	if got, want := s.String(), "NorthstarLauncher.exe -multiple +ns_server_name 'My Server'"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

//nolint:paralleltest // Swaps the package-level exec seams.
func TestRunAndStart(t *testing.T) {
	origRun, origStart := runCommand, startCommand
	t.Cleanup(func() { runCommand, startCommand = origRun, origStart })

	var ran, started []string
	runCommand = func(cmd *exec.Cmd) error {
		ran = append(ran, cmd.Args...)
		return nil
	}
	startCommand = func(cmd *exec.Cmd) error {
		started = append(started, cmd.Args...)
		return errors.New("boom")
	}

	dir := t.TempDir()
	exe := filepath.Join(dir, "NorthstarLauncher.exe")
	testutil.MustWriteFile(t, exe, "")

	if err := Run(context.Background(), Client(dir, "NorthstarLauncher.exe", nil, nil, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{exe}, ran); diff != "" {
		t.Errorf("run argv mismatch (-want +got):\n%s", diff)
	}

	if err := Start(context.Background(), Server("alpha", dir, "NorthstarLauncher.exe", nil, nil)); err == nil {
		t.Error("Start should surface the start error")
	}
	if diff := cmp.Diff([]string{exe, "-dedicated"}, started); diff != "" {
		t.Errorf("start argv mismatch (-want +got):\n%s", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Start(ctx, Server("alpha", dir, "NorthstarLauncher.exe", nil, nil)); !errors.Is(err, context.Canceled) {
		t.Errorf("Start with cancelled ctx = %v", err)
	}
}

func TestSplitArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"-multiple", []string{"-multiple"}},
		{"-multiple  -novid", []string{"-multiple", "-novid"}},
		{`+ns_server_name "My Server" -port 37015`, []string{"+ns_server_name", "My Server", "-port", "37015"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := SplitArgs(tt.in)
			if err != nil {
				t.Fatalf("SplitArgs: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SplitArgs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
