// SPDX-License-Identifier: MPL-2.0

package updater

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/northstarmanager/nsm/internal/release"
	"github.com/northstarmanager/nsm/internal/selfupdate"
	"github.com/northstarmanager/nsm/internal/source"
)

// LockFileName is created in the game directory by AcquireLock.
const LockFileName = ".nsm.lock"

const (
	// GroupManager holds the nsm executable.
	GroupManager Group = iota
	// GroupClient holds the Northstar runtime and client mods.
	GroupClient
	// GroupServer holds the mods of one dedicated server.
	GroupServer
)

const (
	// StatusUpToDate means no eligible release was found.
	StatusUpToDate Status = iota
	// StatusUpdated means a release was installed.
	StatusUpdated
	// StatusAvailable means a release would be installed outside check-only mode.
	StatusAvailable
	// StatusSkipped means updates are disabled for the package.
	StatusSkipped
	// StatusNoAsset means eligible releases had no usable asset.
	StatusNoAsset
	// StatusMissingAnchor means the archive lacked the anchor file.
	StatusMissingAnchor
	// StatusFailed means the package could not be checked or downloaded.
	StatusFailed
	// StatusSelfQueued means a new nsm executable is staged for after exit.
	StatusSelfQueued
)

// DefaultRetryDelay is the wait before a rate-limited pass is restarted.
const DefaultRetryDelay = 60 * time.Second

// ErrLocked is returned by AcquireLock when another nsm process holds the
// install lock.
var ErrLocked = errors.New("another nsm process is updating this installation")

type (
	// Group orders packages within a pass.
	Group int

	// Status is the outcome of one package.
	Status int

	// Descriptor describes one installable package. The pass updates
	// LastUpdate and Kind in place; the caller persists them afterwards.
	Descriptor struct {
		Name     string
		SourceID string
		// Kind is the hosting backend. Zero means unknown; the first pass
		// probes for it.
		Kind       source.Kind
		AnchorFile string
		InstallDir string
		// ExcludeFiles are relative to InstallDir.
		ExcludeFiles     []string
		IgnorePrerelease bool
		IgnoreUpdates    bool
		LastUpdate       time.Time
		// Self marks the nsm executable.
		Self bool
		// EcosystemRoot marks the Northstar runtime whose tree hosts other mods.
		EcosystemRoot bool
		Group         Group
		// Server names the dedicated server for GroupServer packages.
		Server string
	}

	// ServerPlan is the work for one dedicated server.
	ServerPlan struct {
		Name     string
		Packages []*Descriptor
		// Configure rewrites the server config after its mods are updated.
		// It is not called in check-only mode.
		Configure func(ctx context.Context) error
	}

	// Plan is everything one pass processes.
	Plan struct {
		// Packages holds the manager and client packages.
		Packages []*Descriptor
		Servers  []ServerPlan
	}

	// Result is the outcome of one package in the last pass.
	Result struct {
		Name        string
		Group       Group
		Server      string
		Status      Status
		Tag         string
		PublishedAt time.Time
		Notes       string
		Err         error
	}

	// Outcome is the result of Run. Halted is set when a new nsm executable
	// was staged; Actions must then run after the process exits. Aborted is
	// set when the user declined to retry after a rate limit.
	Outcome struct {
		Halted  bool
		Aborted bool
		Actions []selfupdate.DeferredAction
		Results []Result
	}

	// Opener resolves source ids. *source.Client implements it.
	Opener interface {
		Open(ctx context.Context, id string) (source.Source, error)
		OpenKind(id string, kind source.Kind) (source.Source, error)
	}

	// Prompter asks whether a rate-limited pass should be retried.
	Prompter interface {
		ConfirmRetry(ctx context.Context, err *source.RateLimitError) (bool, error)
	}

	// Clock abstracts waiting so the retry delay can be skipped in tests.
	Clock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
	}

	// Options configure a pass.
	Options struct {
		// Force applies a force policy to every package.
		Force release.ForcePolicy
		// ForceGroups forces whole groups, e.g. --update-servers.
		ForceGroups []Group
		// CheckOnly reports available releases without installing.
		CheckOnly bool
		// RelaunchArgs are passed to a replaced nsm executable.
		RelaunchArgs []string
		// ModsSubpath and ReservedPrefix locate foreign mods in the
		// ecosystem root package.
		ModsSubpath    string
		ReservedPrefix string
		// Progress receives download progress bars. Nil disables them.
		Progress io.Writer
		// TempDir holds archive downloads. Empty means the system temp dir.
		TempDir    string
		RetryDelay time.Duration
	}

	realClock struct{}
)

// String returns the group name used in logs.
func (g Group) String() string {
	switch g {
	case GroupManager:
		return "manager"
	case GroupClient:
		return "client"
	case GroupServer:
		return "server"
	}
	return "unknown"
}

// String returns a short status label.
func (s Status) String() string {
	switch s {
	case StatusUpToDate:
		return "up to date"
	case StatusUpdated:
		return "updated"
	case StatusAvailable:
		return "update available"
	case StatusSkipped:
		return "skipped"
	case StatusNoAsset:
		return "no valid asset"
	case StatusMissingAnchor:
		return "anchor missing"
	case StatusFailed:
		return "failed"
	case StatusSelfQueued:
		return "restart queued"
	}
	return "unknown"
}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
