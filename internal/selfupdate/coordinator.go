// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/northstarmanager/nsm/internal/release"
	"github.com/northstarmanager/nsm/internal/source"
)

const (
	// StateIdle is the state before and after a self-update check that found nothing.
	StateIdle State = iota
	// StateResolvingSelf is entered while releases of nsm itself are resolved.
	StateResolvingSelf
	// StateDownloaded means the new executable is staged as "<target>.new".
	StateDownloaded
	// StateQueued means the DeferredAction has been built.
	StateQueued
	// StateHaltRequested is terminal: the update pass must stop and the
	// action must run after exit.
	StateHaltRequested
)

// NewSuffix is appended to the target path for the staged executable.
const NewSuffix = ".new"

// ErrInvalidTransition is returned when the coordinator is driven out of order.
var ErrInvalidTransition = errors.New("invalid self-update state transition")

type (
	// State is a step of the self-replacement state machine.
	State int

	// Request describes one self-replacement.
	Request struct {
		Source    source.Source
		Selection release.Selection
		// Target is the path of the executable being replaced.
		Target string
		// RelaunchArgs are passed to the new executable.
		RelaunchArgs []string
	}

	// Handoff is what Replace passes back to the update pass.
	Handoff struct {
		Action DeferredAction
		// PublishedAt becomes the package's LastUpdate right away, before
		// the swap has happened.
		PublishedAt time.Time
		Tag         string
	}

	// Coordinator drives the replacement of the running executable.
	Coordinator struct {
		state       State
		waitSeconds int
		progress    io.Writer
		goos        string
	}

	// CoordinatorOption configures a Coordinator.
	CoordinatorOption func(*Coordinator)
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingSelf:
		return "resolving-self"
	case StateDownloaded:
		return "downloaded"
	case StateQueued:
		return "queued"
	case StateHaltRequested:
		return "halt-requested"
	}
	return "unknown"
}

// WithWaitSeconds sets how long the deferred action waits before touching files.
func WithWaitSeconds(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.waitSeconds = n
	}
}

// WithProgress draws download progress on w.
func WithProgress(w io.Writer) CoordinatorOption {
	return func(c *Coordinator) {
		c.progress = w
	}
}

// WithGOOS overrides the platform the staged file is prepared for.
func WithGOOS(goos string) CoordinatorOption {
	return func(c *Coordinator) {
		c.goos = goos
	}
}

// NewCoordinator returns an idle Coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{waitSeconds: DefaultWaitSeconds, goos: runtime.GOOS}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State { return c.state }

// Begin marks the start of release resolution for the self package.
func (c *Coordinator) Begin() error {
	return c.transition(StateIdle, StateResolvingSelf)
}

// Reset returns to idle after a resolution that selected nothing.
func (c *Coordinator) Reset() error {
	return c.transition(StateResolvingSelf, StateIdle)
}

// Replace stages the selected release next to req.Target and builds the
// deferred swap. The running executable is never modified; a failed Replace
// leaves no ".new" file behind.
func (c *Coordinator) Replace(ctx context.Context, req Request) (Handoff, error) {
	if c.state != StateResolvingSelf {
		return Handoff{}, fmt.Errorf("%w: replace from %s", ErrInvalidTransition, c.state)
	}

	target, err := filepath.Abs(req.Target)
	if err != nil {
		return Handoff{}, fmt.Errorf("resolving target: %w", err)
	}
	staged := target + NewSuffix

	if err := c.stage(ctx, req, target, staged); err != nil {
		return Handoff{}, err
	}
	c.state = StateDownloaded
	slog.Debug("staged new executable", "path", staged, "tag", req.Selection.Candidate.Tag)

	action := DeferredAction{
		WaitSeconds:   c.waitSeconds,
		DeleteOldPath: target,
		RenameFrom:    staged,
		RenameTo:      target,
		RelaunchPath:  target,
		RelaunchArgs:  req.RelaunchArgs,
	}
	c.state = StateQueued

	return Handoff{
		Action:      action,
		PublishedAt: req.Selection.Candidate.PublishedAt,
		Tag:         req.Selection.Candidate.Tag,
	}, nil
}

// Halt requests that the update pass stop so the queued action can run.
func (c *Coordinator) Halt() error {
	return c.transition(StateQueued, StateHaltRequested)
}

func (c *Coordinator) stage(ctx context.Context, req Request, target, staged string) (err error) {
	dir := filepath.Dir(target)
	tmp, err := source.Fetch(ctx, req.Source, req.Selection.Asset, dir, c.progress)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err := VerifyAsset(ctx, req.Source, req.Selection.Candidate, req.Selection.Asset, tmp); err != nil {
		return err
	}
	if c.goos != "windows" {
		if err := os.Chmod(tmp, 0o755); err != nil {
			return fmt.Errorf("making staged executable runnable: %w", err)
		}
	}
	if err := os.Rename(tmp, staged); err != nil {
		return fmt.Errorf("staging new executable: %w", err)
	}
	return nil
}

func (c *Coordinator) transition(from, to State) error {
	if c.state != from {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.state, to)
	}
	c.state = to
	return nil
}
