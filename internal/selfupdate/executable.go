// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	// osExecutable is a test seam for os.Executable.
	//
	//nolint:gochecknoglobals // Test seam requires a package-level variable.
	osExecutable = os.Executable

	// evalSymlinks is a test seam for filepath.EvalSymlinks.
	//
	//nolint:gochecknoglobals // Test seam requires a package-level variable.
	evalSymlinks = filepath.EvalSymlinks
)

// Executable returns the absolute path of the running executable with
// symlinks resolved.
func Executable() (string, error) {
	p, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	resolved, err := evalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("resolving executable path: %w", err)
	}
	return filepath.Abs(resolved)
}

// IsRunningExecutable reports whether path names the running executable.
func IsRunningExecutable(path string) bool {
	self, err := Executable()
	if err != nil {
		return false
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	if resolved, err := evalSymlinks(target); err == nil {
		target = resolved
	}
	return sameFile(self, target)
}

func sameFile(a, b string) bool {
	if a == b {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
