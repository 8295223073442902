// SPDX-License-Identifier: MPL-2.0

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/mod/semver"

	"github.com/northstarmanager/nsm/internal/release"
)

type (
	// ThunderstoreSource looks up one Thunderstore package. Thunderstore only
	// exposes the latest version through this API, so ListReleases yields at
	// most one candidate.
	ThunderstoreSource struct {
		client    *Client
		namespace string
		name      string

		// latest is filled by probe so Open followed by ListReleases costs a
		// single request.
		latest *release.Candidate
	}

	thunderstorePackage struct {
		FullName     string             `json:"full_name"`
		IsDeprecated bool               `json:"is_deprecated"`
		Latest       thunderstoreLatest `json:"latest"`
	}

	thunderstoreLatest struct {
		VersionNumber string `json:"version_number"`
		DownloadURL   string `json:"download_url"`
		DateCreated   string `json:"date_created"`
		Description   string `json:"description"`
		FullName      string `json:"full_name"`
	}
)

// Thunderstore returns the Source for the package namespace/name.
func (c *Client) Thunderstore(namespace, name string) *ThunderstoreSource {
	return &ThunderstoreSource{client: c, namespace: namespace, name: name}
}

// Kind returns KindThunderstore.
func (s *ThunderstoreSource) Kind() Kind { return KindThunderstore }

// ID returns "namespace/name".
func (s *ThunderstoreSource) ID() string { return s.namespace + "/" + s.name }

// ListReleases returns the latest package version as a single candidate.
func (s *ThunderstoreSource) ListReleases(ctx context.Context) ([]release.Candidate, error) {
	if s.latest != nil {
		c := *s.latest
		s.latest = nil
		return []release.Candidate{c}, nil
	}
	c, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []release.Candidate{c}, nil
}

// Download opens the package archive.
func (s *ThunderstoreSource) Download(ctx context.Context, assetURL string) (io.ReadCloser, int64, error) {
	return s.client.download(ctx, assetURL)
}

func (s *ThunderstoreSource) probe(ctx context.Context) error {
	c, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	s.latest = &c
	return nil
}

func (s *ThunderstoreSource) fetch(ctx context.Context) (release.Candidate, error) {
	pkgURL := fmt.Sprintf("%s/api/experimental/package/%s/%s/",
		s.client.thunderstoreBase, url.PathEscape(s.namespace), url.PathEscape(s.name))

	resp, err := s.client.doRequest(ctx, pkgURL, true, map[string]string{"Accept": "application/json"})
	if err != nil {
		return release.Candidate{}, fmt.Errorf("looking up %s on Thunderstore: %w", s.ID(), err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if err := checkRateLimit(resp, "Thunderstore"); err != nil {
		return release.Candidate{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return release.Candidate{}, fmt.Errorf("%s on Thunderstore: %w", s.ID(), ErrPackageNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return release.Candidate{}, fmt.Errorf("looking up %s on Thunderstore: unexpected status %d", s.ID(), resp.StatusCode)
	}

	var pkg thunderstorePackage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&pkg); err != nil {
		return release.Candidate{}, fmt.Errorf("looking up %s on Thunderstore: decoding response: %w", s.ID(), err)
	}
	return pkg.toCandidate()
}

func (p thunderstorePackage) toCandidate() (release.Candidate, error) {
	created, err := time.Parse(time.RFC3339, p.Latest.DateCreated)
	if err != nil {
		return release.Candidate{}, fmt.Errorf("package %s: parsing date_created: %w", p.FullName, err)
	}

	name := p.Latest.FullName
	if name == "" {
		name = p.FullName
	}

	c := release.Candidate{
		Tag:         versionTag(p.Latest.VersionNumber),
		PublishedAt: created,
		Notes:       p.Latest.Description,
	}
	if p.Latest.DownloadURL != "" {
		c.Assets = []release.Asset{{
			Name:        name + ".zip",
			ContentType: "application/zip",
			DownloadURL: p.Latest.DownloadURL,
		}}
	}
	return c, nil
}

// versionTag turns a Thunderstore version number into a canonical "vX.Y.Z"
// tag. Numbers that are not semantic versions are returned unchanged.
func versionTag(version string) string {
	if v := semver.Canonical("v" + version); v != "" {
		return v
	}
	return version
}
