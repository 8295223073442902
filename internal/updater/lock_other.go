// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package updater

import "log/slog"

// InstallLock is a no-op on platforms without flock.
type InstallLock struct{}

// AcquireLock always succeeds without locking.
func AcquireLock(dir string) (*InstallLock, error) {
	slog.Debug("install lock unavailable on this platform", "dir", dir)
	return &InstallLock{}, nil
}

// Release is a no-op.
func (l *InstallLock) Release() {}
