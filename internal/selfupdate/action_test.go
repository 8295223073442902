// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDeferredAction_PosixScript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action DeferredAction
		want   string
	}{
		{
			name: "full swap",
			action: DeferredAction{
				WaitSeconds:   5,
				DeleteOldPath: "/opt/nsm/nsm",
				RenameFrom:    "/opt/nsm/nsm.new",
				RenameTo:      "/opt/nsm/nsm",
				RelaunchPath:  "/opt/nsm/nsm",
				RelaunchArgs:  []string{"--update-all-except-self", "--no-launch"},
			},
			want: "sleep 5 && rm -f -- /opt/nsm/nsm && mv -f -- /opt/nsm/nsm.new /opt/nsm/nsm && exec /opt/nsm/nsm --update-all-except-self --no-launch",
		},
		{
			name: "paths with spaces are quoted",
			action: DeferredAction{
				DeleteOldPath: "/games/Titanfall 2/nsm",
				RelaunchPath:  "/games/Titanfall 2/nsm",
			},
			want: "rm -f -- '/games/Titanfall 2/nsm' && exec '/games/Titanfall 2/nsm'",
		},
		{
			name:   "rename needs both ends",
			action: DeferredAction{WaitSeconds: 1, RenameFrom: "/a.new"},
			want:   "sleep 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.action.Script("linux")
			if err != nil {
				t.Fatalf("Script: %v", err)
			}
			if got != tt.want {
				t.Errorf("Script() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestDeferredAction_WindowsScript(t *testing.T) {
	t.Parallel()

	action := DeferredAction{
		WaitSeconds:   5,
		DeleteOldPath: `C:\Games\Titanfall2\NorthstarManager.exe`,
		RenameFrom:    `C:\Games\Titanfall2\NorthstarManager.exe.new`,
		RenameTo:      `C:\Games\Titanfall2\NorthstarManager.exe`,
		RelaunchPath:  `C:\Games\Titanfall2\NorthstarManager.exe`,
		RelaunchArgs:  []string{"--update-all-except-self", "+mp_gamemode ps"},
	}

	got, err := action.Script("windows")
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	want := `ping -n 6 127.0.0.1 > NUL && ` +
		`del /f /q C:\Games\Titanfall2\NorthstarManager.exe && ` +
		`move /y C:\Games\Titanfall2\NorthstarManager.exe.new C:\Games\Titanfall2\NorthstarManager.exe > NUL && ` +
		`start "" C:\Games\Titanfall2\NorthstarManager.exe --update-all-except-self "+mp_gamemode ps"`
	if got != want {
		t.Errorf("Script() =\n  %s\nwant\n  %s", got, want)
	}
	if strings.Contains(got, "timeout") {
		t.Error("timeout.exe fails without a console and must not gate the swap")
	}
}

func TestWinQuote(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`plain`:            `plain`,
		`C:\Program Files`: `"C:\Program Files"`,
		`a&b`:              `"a&b"`,
		`say "hi"`:         `"say ""hi"""`,
		``:                 `""`,
		`100%`:             `"100"^%""`,
		`%PATH%`:           `""^%"PATH"^%""`,
	}
	for in, want := range tests {
		if got := winQuote(in); got != want {
			t.Errorf("winQuote(%q) = %s, want %s", in, got, want)
		}
	}
}

//nolint:paralleltest // Replaces the startCommand package variable.
func TestDeferredAction_Start(t *testing.T) {
	var started *exec.Cmd
	orig := startCommand
	startCommand = func(cmd *exec.Cmd) error {
		started = cmd
		return nil
	}
	t.Cleanup(func() { startCommand = orig })

	action := DeferredAction{WaitSeconds: 2, RelaunchPath: "/opt/nsm/nsm"}
	if err := action.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started == nil {
		t.Fatal("no command started")
	}

	cmd, err := action.Command("linux")
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	want := []string{"/bin/sh", "-c", "sleep 2 && exec /opt/nsm/nsm"}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if cmd.SysProcAttr == nil {
		t.Error("deferred command is not detached")
	}
}
