// SPDX-License-Identifier: MPL-2.0

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/northstarmanager/nsm/internal/release"
)

const (
	// defaultPerPage is the number of releases fetched per API page.
	defaultPerPage = 30

	// maxPages bounds pagination. Only the newest releases matter for
	// resolution, so three pages is plenty.
	maxPages = 3
)

type (
	// GitHubSource lists the releases of one GitHub repository.
	GitHubSource struct {
		client *Client
		owner  string
		repo   string
	}

	githubRelease struct {
		TagName     string        `json:"tag_name"`
		Prerelease  bool          `json:"prerelease"`
		Draft       bool          `json:"draft"`
		PublishedAt string        `json:"published_at"`
		ZipballURL  string        `json:"zipball_url"`
		Body        string        `json:"body"`
		Assets      []githubAsset `json:"assets"`
	}

	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
		ContentType        string `json:"content_type"`
	}
)

// GitHub returns the Source for github.com/owner/repo.
func (c *Client) GitHub(owner, repo string) *GitHubSource {
	return &GitHubSource{client: c, owner: owner, repo: repo}
}

// Kind returns KindGitHub.
func (s *GitHubSource) Kind() Kind { return KindGitHub }

// ID returns "owner/repo".
func (s *GitHubSource) ID() string { return s.owner + "/" + s.repo }

// ListReleases fetches published releases, newest first. Drafts are dropped;
// prereleases are kept and left to the resolver's policy.
func (s *GitHubSource) ListReleases(ctx context.Context) ([]release.Candidate, error) {
	pageURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d",
		s.client.githubBase, s.owner, s.repo, defaultPerPage)

	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}

	var all []release.Candidate

	for page := 0; page < maxPages && pageURL != ""; page++ {
		resp, err := s.client.doRequest(ctx, pageURL, true, headers)
		if err != nil {
			return nil, fmt.Errorf("listing releases of %s: %w", s.ID(), err)
		}

		if rlErr := checkRateLimit(resp, "GitHub"); rlErr != nil {
			resp.Body.Close()
			return nil, rlErr
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, fmt.Errorf("listing releases of %s: %w", s.ID(), ErrPackageNotFound)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("listing releases of %s: unexpected status %d", s.ID(), resp.StatusCode)
		}

		candidates, parseErr := parseReleases(io.LimitReader(resp.Body, maxJSONResponseBytes))
		resp.Body.Close()
		if parseErr != nil {
			return nil, fmt.Errorf("listing releases of %s: %w", s.ID(), parseErr)
		}
		all = append(all, candidates...)

		pageURL = parseLinkHeader(resp.Header.Get("Link"))
	}

	release.SortCandidates(all)
	return all, nil
}

// Download opens a release asset.
func (s *GitHubSource) Download(ctx context.Context, assetURL string) (io.ReadCloser, int64, error) {
	return s.client.download(ctx, assetURL)
}

// parseReleases decodes a JSON array of GitHub releases, dropping drafts.
func parseReleases(body io.Reader) ([]release.Candidate, error) {
	var raw []githubRelease
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding releases: %w", err)
	}

	candidates := make([]release.Candidate, 0, len(raw))
	for _, gr := range raw {
		if gr.Draft {
			continue
		}
		c, err := toCandidate(gr)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func toCandidate(gr githubRelease) (release.Candidate, error) {
	published, err := time.Parse(time.RFC3339, gr.PublishedAt)
	if err != nil {
		return release.Candidate{}, fmt.Errorf("release %s: parsing published_at: %w", gr.TagName, err)
	}

	assets := make([]release.Asset, 0, len(gr.Assets))
	for _, ga := range gr.Assets {
		assets = append(assets, release.Asset{
			Name:        ga.Name,
			ContentType: ga.ContentType,
			DownloadURL: ga.BrowserDownloadURL,
			Size:        ga.Size,
		})
	}

	return release.Candidate{
		Tag:              gr.TagName,
		PublishedAt:      published,
		Prerelease:       gr.Prerelease,
		Assets:           assets,
		SourceArchiveURL: gr.ZipballURL,
		Notes:            gr.Body,
	}, nil
}

// parseLinkHeader extracts the URL for the "next" page from a GitHub API Link header.
// Returns an empty string if no next page exists.
//
// Example header: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkHeader(header string) string {
	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}
