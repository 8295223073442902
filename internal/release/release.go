// SPDX-License-Identifier: MPL-2.0

package release

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	// StaleWindow is the grace period used for the self package: an on-disk
	// executable older than a release's publish time minus this window is
	// treated as not yet swapped in, even when LastUpdate says otherwise.
	StaleWindow = 10 * time.Minute
)

const (
	// ForceNone applies no force; eligibility is decided by state alone.
	ForceNone ForcePolicy = iota
	// ForceThis forces the package it is attached to.
	ForceThis
	// ForceAllExceptSelf forces every package except the running executable.
	ForceAllExceptSelf
	// ForceAll forces every package, including the running executable.
	ForceAll
)

var (
	// ErrNoValidRelease is returned when no candidate satisfies eligibility.
	ErrNoValidRelease = errors.New("no valid release")

	// ErrNoValidAsset is returned when a release has no asset matching the
	// package kind (raw binary for the self package, zip for everything else).
	ErrNoValidAsset = errors.New("no valid asset")

	// binaryContentTypes are accepted for the self package.
	binaryContentTypes = []string{
		"application/octet-stream",
		"application/x-msdownload",
	}

	// archiveContentTypes are accepted for mod and content packages.
	archiveContentTypes = []string{
		"application/zip",
		"application/x-zip-compressed",
		"application/x-zip",
	}
)

type (
	// ForcePolicy describes which packages are updated regardless of state.
	ForcePolicy int

	// Asset is one downloadable file attached to a release.
	Asset struct {
		Name        string
		ContentType string
		DownloadURL string
		Size        int64
	}

	// Candidate is a release as seen by the resolver. Candidates for one
	// package are ordered by PublishedAt descending.
	Candidate struct {
		Tag         string
		PublishedAt time.Time
		Prerelease  bool
		Assets      []Asset
		// SourceArchiveURL is the auto-generated zipball of the tagged tree,
		// used when a release lists no assets at all.
		SourceArchiveURL string
		// Notes is the release body (markdown), when the source provides one.
		Notes string
	}

	// Policy is the package state and configuration the resolver decides on.
	Policy struct {
		// Self marks the package that represents the running executable.
		Self bool
		// Force is true when a force flag applies to this package.
		Force bool
		// IgnorePrerelease skips candidates flagged as prerelease.
		IgnorePrerelease bool
		// LastUpdate is the publish time of the last installed release.
		LastUpdate time.Time
		// TargetExists reports whether the install target is on disk.
		TargetExists bool
		// TargetModTime is the modification time of the install target.
		// Only consulted for the self package.
		TargetModTime time.Time
	}

	// Selection is the release and asset chosen for installation.
	Selection struct {
		Candidate Candidate
		Asset     Asset
	}

	// NoAssetError reports that every eligible release lacked a usable asset.
	// It matches both ErrNoValidAsset and ErrNoValidRelease.
	NoAssetError struct {
		Tags []string
	}
)

// Applies reports whether the policy forces a package. self is true for the
// package that represents the running executable.
func (f ForcePolicy) Applies(self bool) bool {
	switch f {
	case ForceThis, ForceAll:
		return true
	case ForceAllExceptSelf:
		return !self
	case ForceNone:
		return false
	}
	return false
}

// String returns the flag-style name of the policy.
func (f ForcePolicy) String() string {
	switch f {
	case ForceNone:
		return "none"
	case ForceThis:
		return "this"
	case ForceAllExceptSelf:
		return "all-except-self"
	case ForceAll:
		return "all"
	}
	return "unknown"
}

// Error lists the tags that were considered.
func (e *NoAssetError) Error() string {
	return fmt.Sprintf("no valid asset in eligible releases %s", strings.Join(e.Tags, ", "))
}

// Is makes the error match both ErrNoValidAsset and ErrNoValidRelease.
func (e *NoAssetError) Is(target error) bool {
	return target == ErrNoValidAsset || target == ErrNoValidRelease
}

// Eligible reports whether c should be installed under p. Prerelease
// filtering is not part of eligibility; Resolve applies it first.
func (p Policy) Eligible(c Candidate) bool {
	if p.Force || !p.TargetExists {
		return true
	}
	if c.PublishedAt.After(p.LastUpdate) {
		return true
	}
	return p.Self && p.TargetModTime.Before(c.PublishedAt.Add(-StaleWindow))
}

// Resolve walks candidates newest first and returns the first eligible
// release with a usable asset. Eligible releases without a usable asset are
// skipped in favour of the next eligible one.
func Resolve(candidates []Candidate, p Policy) (Selection, error) {
	var skipped []string
	for _, c := range candidates {
		if c.Prerelease && p.IgnorePrerelease {
			continue
		}
		if !p.Eligible(c) {
			continue
		}
		asset, err := SelectAsset(c, p.Self)
		if errors.Is(err, ErrNoValidAsset) {
			skipped = append(skipped, c.Tag)
			continue
		}
		if err != nil {
			return Selection{}, err
		}
		return Selection{Candidate: c, Asset: asset}, nil
	}

	if len(skipped) > 0 {
		return Selection{}, &NoAssetError{Tags: skipped}
	}
	return Selection{}, ErrNoValidRelease
}

// SelectAsset picks the asset to download from c. The self package needs a
// raw executable; everything else needs a zip archive, falling back to the
// source archive when the release lists no assets.
func SelectAsset(c Candidate, self bool) (Asset, error) {
	accepted := archiveContentTypes
	if self {
		accepted = binaryContentTypes
	}

	if len(c.Assets) == 0 && !self && c.SourceArchiveURL != "" {
		return Asset{
			Name:        c.Tag + ".zip",
			ContentType: "application/zip",
			DownloadURL: c.SourceArchiveURL,
		}, nil
	}

	for _, a := range c.Assets {
		if slices.Contains(accepted, normalizeContentType(a.ContentType)) {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("release %s: %w", c.Tag, ErrNoValidAsset)
}

// SortCandidates orders candidates by publish time, newest first. The sort
// is stable so releases published at the same instant keep source order.
func SortCandidates(candidates []Candidate) {
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}

// normalizeContentType strips parameters such as "; charset=binary".
func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
