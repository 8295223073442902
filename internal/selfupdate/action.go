// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// DefaultWaitSeconds gives the exiting process time to release the file.
const DefaultWaitSeconds = 5

// startCommand runs a rendered action. Tests replace it.
//
//nolint:gochecknoglobals // Test seam requires a package-level variable.
var startCommand = func(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// DeferredAction is the file swap that has to happen after nsm exits.
// Empty fields are skipped when the action is rendered.
type DeferredAction struct {
	WaitSeconds   int
	DeleteOldPath string
	RenameFrom    string
	RenameTo      string
	RelaunchPath  string
	RelaunchArgs  []string
}

// Script renders the action as a shell script for goos: a cmd.exe line on
// Windows, a POSIX sh script everywhere else.
func (a DeferredAction) Script(goos string) (string, error) {
	if goos == "windows" {
		return a.windowsScript(), nil
	}
	return a.posixScript()
}

// Command returns the process that executes the action on goos.
func (a DeferredAction) Command(goos string) (*exec.Cmd, error) {
	script, err := a.Script(goos)
	if err != nil {
		return nil, err
	}
	if goos == "windows" {
		cmd := exec.Command("cmd.exe")
		detach(cmd, `cmd.exe /c "`+script+`"`)
		return cmd, nil
	}
	cmd := exec.Command("/bin/sh", "-c", script)
	detach(cmd, "")
	return cmd, nil
}

// Start runs the action detached from the current process. It returns once
// the helper process has been spawned.
func (a DeferredAction) Start() error {
	cmd, err := a.Command(runtime.GOOS)
	if err != nil {
		return err
	}
	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("starting deferred action: %w", err)
	}
	return nil
}

func (a DeferredAction) posixScript() (string, error) {
	quote := func(s string) (string, error) {
		q, err := syntax.Quote(s, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("quoting %q: %w", s, err)
		}
		return q, nil
	}

	var steps []string
	if a.WaitSeconds > 0 {
		steps = append(steps, fmt.Sprintf("sleep %d", a.WaitSeconds))
	}
	if a.DeleteOldPath != "" {
		p, err := quote(a.DeleteOldPath)
		if err != nil {
			return "", err
		}
		steps = append(steps, "rm -f -- "+p)
	}
	if a.RenameFrom != "" && a.RenameTo != "" {
		from, err := quote(a.RenameFrom)
		if err != nil {
			return "", err
		}
		to, err := quote(a.RenameTo)
		if err != nil {
			return "", err
		}
		steps = append(steps, "mv -f -- "+from+" "+to)
	}
	if a.RelaunchPath != "" {
		words := make([]string, 0, len(a.RelaunchArgs)+1)
		for _, w := range append([]string{a.RelaunchPath}, a.RelaunchArgs...) {
			q, err := quote(w)
			if err != nil {
				return "", err
			}
			words = append(words, q)
		}
		steps = append(steps, "exec "+strings.Join(words, " "))
	}
	return strings.Join(steps, " && "), nil
}

func (a DeferredAction) windowsScript() string {
	var steps []string
	if a.WaitSeconds > 0 {
		// timeout.exe rejects the NUL stdin of a detached process; ping waits
		// about one second per echo after the first.
		steps = append(steps, fmt.Sprintf("ping -n %d 127.0.0.1 > NUL", a.WaitSeconds+1))
	}
	if a.DeleteOldPath != "" {
		steps = append(steps, "del /f /q "+winQuote(a.DeleteOldPath))
	}
	if a.RenameFrom != "" && a.RenameTo != "" {
		steps = append(steps, "move /y "+winQuote(a.RenameFrom)+" "+winQuote(a.RenameTo)+" > NUL")
	}
	if a.RelaunchPath != "" {
		words := []string{`start ""`, winQuote(a.RelaunchPath)}
		for _, arg := range a.RelaunchArgs {
			words = append(words, winQuote(arg))
		}
		steps = append(steps, strings.Join(words, " "))
	}
	return strings.Join(steps, " && ")
}

// winQuote wraps s in double quotes when cmd.exe would split or interpret it.
// Percent signs are expanded even inside quotes, so each one is moved outside
// the quotes and caret-escaped; "%%" only collapses in batch files.
func winQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t&|<>^()%!\"") {
		return s
	}
	parts := strings.Split(s, "%")
	for i, part := range parts {
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	return strings.Join(parts, "^%")
}
