// SPDX-License-Identifier: MPL-2.0

package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/northstarmanager/nsm/internal/archive"
	"github.com/northstarmanager/nsm/internal/release"
	"github.com/northstarmanager/nsm/internal/selfupdate"
	"github.com/northstarmanager/nsm/internal/source"
)

type (
	// Orchestrator runs update passes.
	Orchestrator struct {
		opener   Opener
		prompter Prompter
		clock    Clock
		opts     Options
		coord    *selfupdate.Coordinator
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)

	// pass is the state of one run through the plan. halt is set once a
	// self-replacement is queued; run stops at the next package boundary.
	pass struct {
		o       *Orchestrator
		results []Result
		halt    *selfupdate.DeferredAction
	}
)

// WithClock replaces the clock used for the retry delay.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithCoordinator replaces the self-replacement coordinator.
func WithCoordinator(c *selfupdate.Coordinator) Option {
	return func(o *Orchestrator) {
		o.coord = c
	}
}

// New returns an Orchestrator that opens sources through opener and asks
// prompter when a release API is rate limited.
func New(opener Opener, prompter Prompter, opts Options, options ...Option) *Orchestrator {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	o := &Orchestrator{
		opener:   opener,
		prompter: prompter,
		clock:    realClock{},
		opts:     opts,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.coord == nil {
		o.coord = selfupdate.NewCoordinator(selfupdate.WithProgress(opts.Progress))
	}
	return o
}

// Run processes plan until a pass completes, halts for self-replacement or
// is aborted. A rate-limited pass is restarted from the beginning when the
// prompter agrees. The returned error is set only for failures that end the
// pass: filesystem errors while installing, a failed prompt or a cancelled
// context.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (Outcome, error) {
	for attempt := 1; ; attempt++ {
		p := &pass{o: o}
		err := p.run(ctx, plan)
		out := Outcome{Results: p.results}

		if err == nil && p.halt != nil {
			out.Halted = true
			out.Actions = []selfupdate.DeferredAction{*p.halt}
			return out, nil
		}

		var rlErr *source.RateLimitError
		if !errors.As(err, &rlErr) {
			return out, err
		}

		slog.Warn("release API rate limit exceeded", "error", rlErr, "attempt", attempt)
		retry, promptErr := o.prompter.ConfirmRetry(ctx, rlErr)
		if promptErr != nil {
			return out, fmt.Errorf("asking to retry: %w", promptErr)
		}
		if !retry {
			out.Aborted = true
			return out, nil
		}

		slog.Info("waiting before restarting the update pass", "delay", o.opts.RetryDelay)
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-o.clock.After(o.opts.RetryDelay):
		}
	}
}

func (p *pass) run(ctx context.Context, plan Plan) error {
	ordered := slices.Clone(plan.Packages)
	slices.SortStableFunc(ordered, func(a, b *Descriptor) int { return int(a.Group) - int(b.Group) })

	for _, d := range ordered {
		if err := p.process(ctx, d); err != nil || p.halt != nil {
			return err
		}
	}

	for _, srv := range plan.Servers {
		for _, d := range srv.Packages {
			d.Group = GroupServer
			d.Server = srv.Name
			if err := p.process(ctx, d); err != nil || p.halt != nil {
				return err
			}
		}
		if p.o.opts.CheckOnly || srv.Configure == nil {
			continue
		}
		if err := srv.Configure(ctx); err != nil {
			return fmt.Errorf("configuring server %s: %w", srv.Name, err)
		}
	}
	return nil
}

// process handles one package. Recoverable problems are recorded as a
// Result and reported as nil.
func (p *pass) process(ctx context.Context, d *Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	log := slog.With("package", d.Name, "group", d.Group)
	if d.Server != "" {
		log = log.With("server", d.Server)
	}
	res := Result{Name: d.Name, Group: d.Group, Server: d.Server}
	record := func(s Status, err error) {
		res.Status = s
		res.Err = err
		p.results = append(p.results, res)
	}

	forced := p.o.forced(d)
	if d.IgnoreUpdates && !forced {
		log.Info("updates disabled, skipping")
		record(StatusSkipped, nil)
		return nil
	}

	log.Info("searching for new releases")
	src, candidates, err := p.o.list(ctx, d)
	if err != nil {
		if isRateLimit(err) || ctx.Err() != nil {
			return err
		}
		log.Warn("could not check for releases", "error", err)
		record(StatusFailed, err)
		return nil
	}

	policy := release.Policy{
		Self:             d.Self,
		Force:            forced,
		IgnorePrerelease: d.IgnorePrerelease,
		LastUpdate:       d.LastUpdate,
	}
	if info, statErr := os.Stat(filepath.Join(d.InstallDir, d.AnchorFile)); statErr == nil {
		policy.TargetExists = true
		policy.TargetModTime = info.ModTime()
	}

	if d.Self {
		if err := p.o.coord.Begin(); err != nil {
			return err
		}
	}

	sel, err := release.Resolve(candidates, policy)
	switch {
	case errors.Is(err, release.ErrNoValidAsset):
		log.Warn("possibly malformed release, no valid asset", "error", err)
		record(StatusNoAsset, err)
	case errors.Is(err, release.ErrNoValidRelease):
		log.Info("already up to date")
		record(StatusUpToDate, nil)
	}
	if err != nil {
		if d.Self {
			return p.o.coord.Reset()
		}
		return nil
	}

	res.Tag = sel.Candidate.Tag
	res.PublishedAt = sel.Candidate.PublishedAt
	res.Notes = sel.Candidate.Notes

	if p.o.opts.CheckOnly {
		log.Info("update available", "tag", sel.Candidate.Tag, "published", sel.Candidate.PublishedAt)
		record(StatusAvailable, nil)
		if d.Self {
			return p.o.coord.Reset()
		}
		return nil
	}

	log.Info("updating", "tag", sel.Candidate.Tag, "asset", sel.Asset.Name)
	if d.Self {
		return p.replaceSelf(ctx, d, src, sel, record, log)
	}
	return p.install(ctx, d, src, sel, record, log)
}

func (p *pass) replaceSelf(ctx context.Context, d *Descriptor, src source.Source, sel release.Selection, record func(Status, error), log *slog.Logger) error {
	handoff, err := p.o.coord.Replace(ctx, selfupdate.Request{
		Source:       src,
		Selection:    sel,
		Target:       filepath.Join(d.InstallDir, d.AnchorFile),
		RelaunchArgs: p.o.opts.RelaunchArgs,
	})
	if err != nil {
		if resetErr := p.o.coord.Reset(); resetErr != nil {
			return resetErr
		}
		if isRateLimit(err) || isFilesystem(err) || ctx.Err() != nil {
			return err
		}
		log.Warn("could not download new nsm release", "error", err)
		record(StatusFailed, err)
		return nil
	}

	// Recorded before the swap; the stale window catches a swap that never happens.
	d.LastUpdate = handoff.PublishedAt
	record(StatusSelfQueued, nil)
	log.Info("new nsm release staged, restarting", "tag", handoff.Tag)

	if err := p.o.coord.Halt(); err != nil {
		return err
	}
	p.halt = &handoff.Action
	return nil
}

func (p *pass) install(ctx context.Context, d *Descriptor, src source.Source, sel release.Selection, record func(Status, error), log *slog.Logger) error {
	tmp, err := source.Fetch(ctx, src, sel.Asset, p.o.opts.TempDir, p.o.opts.Progress)
	if err != nil {
		if isRateLimit(err) || isFilesystem(err) || ctx.Err() != nil {
			return err
		}
		log.Warn("download failed", "error", err)
		record(StatusFailed, err)
		return nil
	}
	defer func() {
		if rmErr := os.Remove(tmp); rmErr != nil {
			log.Debug("removing download", "path", tmp, "error", rmErr)
		}
	}()

	if err := selfupdate.VerifyAsset(ctx, src, sel.Candidate, sel.Asset, tmp); err != nil {
		if isRateLimit(err) {
			return err
		}
		log.Warn("release failed verification", "error", err)
		record(StatusFailed, err)
		return nil
	}

	res, err := archive.InstallFile(tmp, archive.Options{
		InstallDir:     d.InstallDir,
		AnchorFile:     d.AnchorFile,
		ExcludeFiles:   d.ExcludeFiles,
		EcosystemRoot:  d.EcosystemRoot,
		ModsSubpath:    p.o.opts.ModsSubpath,
		ReservedPrefix: p.o.opts.ReservedPrefix,
	})
	switch {
	case errors.Is(err, archive.ErrFileNotInZip):
		log.Warn("archive does not contain the expected files", "anchor", d.AnchorFile)
		record(StatusMissingAnchor, err)
		return nil
	case errors.Is(err, archive.ErrUnsafePath):
		log.Warn("archive rejected", "error", err)
		record(StatusFailed, err)
		return nil
	case err != nil && (isFilesystem(err) || ctx.Err() != nil):
		return fmt.Errorf("installing %s: %w", d.Name, err)
	case err != nil:
		log.Warn("install failed", "error", err)
		record(StatusFailed, err)
		return nil
	}

	d.LastUpdate = sel.Candidate.PublishedAt
	log.Info("updated successfully", "tag", sel.Candidate.Tag, "files", res.Files, "preserved", len(res.Preserved))
	record(StatusUpdated, nil)
	return nil
}

// list opens the package source, probing its kind on first use, and
// fetches its releases.
func (o *Orchestrator) list(ctx context.Context, d *Descriptor) (source.Source, []release.Candidate, error) {
	var (
		src source.Source
		err error
	)
	if d.Kind != 0 {
		src, err = o.opener.OpenKind(d.SourceID, d.Kind)
	} else {
		src, err = o.opener.Open(ctx, d.SourceID)
	}
	if err != nil {
		return nil, nil, err
	}
	d.Kind = src.Kind()

	candidates, err := src.ListReleases(ctx)
	if err != nil {
		return nil, nil, err
	}
	return src, candidates, nil
}

func (o *Orchestrator) forced(d *Descriptor) bool {
	return o.opts.Force.Applies(d.Self) || slices.Contains(o.opts.ForceGroups, d.Group)
}

func isRateLimit(err error) bool {
	return errors.Is(err, source.ErrRateLimited)
}

// isFilesystem reports local disk errors, which end the pass.
func isFilesystem(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr)
}
