// SPDX-License-Identifier: MPL-2.0

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/northstarmanager/nsm/internal/release"
)

const (
	// KindGitHub identifies packages hosted as GitHub releases.
	KindGitHub Kind = iota + 1
	// KindThunderstore identifies packages hosted on Thunderstore.
	KindThunderstore
)

const (
	defaultGitHubBaseURL       = "https://api.github.com"
	defaultThunderstoreBaseURL = "https://northstar.thunderstore.io"
	defaultUserAgent           = "nsm/dev"

	// maxJSONResponseBytes is the upper bound on JSON API response size (10 MB).
	maxJSONResponseBytes = 10 << 20
)

var (
	// ErrRateLimited is wrapped by RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrPackageNotFound is returned when a source does not know the package.
	ErrPackageNotFound = errors.New("package not found")

	// ErrInvalidSourceID is returned for ids that are not "owner/name".
	ErrInvalidSourceID = errors.New("invalid source id")
)

type (
	// Kind tells which backend hosts a package.
	Kind int

	// Source lists the releases of one package and downloads their assets.
	Source interface {
		Kind() Kind
		// ID is the "owner/name" coordinate of the package.
		ID() string
		// ListReleases returns candidates ordered by publish time, newest first.
		ListReleases(ctx context.Context) ([]release.Candidate, error)
		// Download opens the asset at assetURL. The size is -1 when unknown.
		Download(ctx context.Context, assetURL string) (io.ReadCloser, int64, error)
	}

	// RateLimitError is returned when a release API refuses further requests.
	RateLimitError struct {
		Source    string
		Limit     int
		Remaining int
		ResetAt   time.Time
	}

	// Client talks to the GitHub and Thunderstore APIs.
	Client struct {
		httpClient       *http.Client
		githubBase       string
		thunderstoreBase string
		token            string
		userAgent        string
		limiter          *rate.Limiter
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// String returns the lowercase backend name.
func (k Kind) String() string {
	switch k {
	case KindGitHub:
		return "github"
	case KindThunderstore:
		return "thunderstore"
	}
	return "unknown"
}

// Error formats the rate limit details as a human-readable message.
func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("%s API rate limit exceeded", e.Source)
	}
	return fmt.Sprintf("%s API rate limit exceeded (%d/%d remaining, resets at %s)",
		e.Source, e.Remaining, e.Limit, e.ResetAt.UTC().Format("15:04 UTC"))
}

// Unwrap returns ErrRateLimited so callers can use errors.Is.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithGitHubBaseURL overrides the GitHub API base URL, primarily for tests.
func WithGitHubBaseURL(base string) ClientOption {
	return func(cl *Client) {
		cl.githubBase = strings.TrimRight(base, "/")
	}
}

// WithThunderstoreBaseURL overrides the Thunderstore base URL.
func WithThunderstoreBaseURL(base string) ClientOption {
	return func(cl *Client) {
		cl.thunderstoreBase = strings.TrimRight(base, "/")
	}
}

// WithToken sets a GitHub token for authenticated requests, which raises the
// rate limit from 60 to 5000 requests per hour.
func WithToken(token string) ClientOption {
	return func(cl *Client) {
		cl.token = token
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithRequestLimit paces API requests. Asset downloads are not paced.
func WithRequestLimit(every time.Duration, burst int) ClientOption {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// NewClient creates a Client with production defaults.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:       http.DefaultClient,
		githubBase:       defaultGitHubBaseURL,
		thunderstoreBase: defaultThunderstoreBaseURL,
		userAgent:        defaultUserAgent,
		limiter:          rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open resolves id to a Source. Thunderstore is probed first; a package it
// does not know is looked up on GitHub instead.
func (c *Client) Open(ctx context.Context, id string) (Source, error) {
	owner, name, err := SplitID(id)
	if err != nil {
		return nil, err
	}

	ts := c.Thunderstore(owner, name)
	if err := ts.probe(ctx); err == nil {
		return ts, nil
	} else if !errors.Is(err, ErrPackageNotFound) {
		return nil, err
	}

	return c.GitHub(owner, name), nil
}

// OpenKind returns the Source for id on a known backend without probing.
func (c *Client) OpenKind(id string, kind Kind) (Source, error) {
	owner, name, err := SplitID(id)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindGitHub:
		return c.GitHub(owner, name), nil
	case KindThunderstore:
		return c.Thunderstore(owner, name), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %d for %q", ErrInvalidSourceID, kind, id)
}

// SplitID splits "owner/name" (or the Thunderstore slug "owner-name").
func SplitID(id string) (owner, name string, err error) {
	id = strings.Trim(strings.TrimSpace(id), "/")
	if o, n, ok := strings.Cut(id, "/"); ok && o != "" && n != "" && !strings.Contains(n, "/") {
		return o, n, nil
	}
	if o, n, ok := strings.Cut(id, "-"); ok && o != "" && n != "" && !strings.Contains(id, "/") {
		return o, n, nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidSourceID, id)
}

// doRequest creates and executes a GET request. API requests wait on the
// limiter; asset downloads do not.
func (c *Client) doRequest(ctx context.Context, reqURL string, api bool, headers map[string]string) (*http.Response, error) {
	if api && c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for request slot: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// Only attach the token when the request targets a known GitHub host so it
	// cannot leak to a CDN or to Thunderstore.
	if c.token != "" && isGitHubHost(req.URL, c.githubBase) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// download opens assetURL and returns its body and Content-Length.
func (c *Client) download(ctx context.Context, assetURL string) (io.ReadCloser, int64, error) {
	resp, err := c.doRequest(ctx, assetURL, false, map[string]string{"Accept": "application/octet-stream"})
	if err != nil {
		return nil, 0, fmt.Errorf("downloading %s: %w", redactURL(assetURL), err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, 0, &RateLimitError{Source: "download", ResetAt: retryAfter(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("downloading %s: unexpected status %d", redactURL(assetURL), resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// checkRateLimit inspects the X-RateLimit-* response headers and returns a
// RateLimitError when the remaining quota is zero on a refused request.
func checkRateLimit(resp *http.Response, source string) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Source: source, ResetAt: retryAfter(resp)}
	}

	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil
	}
	rem, err := strconv.Atoi(remaining)
	if err != nil || rem > 0 {
		return nil //nolint:nilerr // Non-numeric header is non-fatal.
	}
	if resp.StatusCode == http.StatusOK {
		// The last allowed request still succeeds.
		return nil
	}

	// Malformed companion headers default to zero; good enough for a message.
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))                 //nolint:errcheck // Best-effort header parsing.
	resetUnix, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64) //nolint:errcheck // Best-effort header parsing.

	return &RateLimitError{
		Source:  source,
		Limit:   limit,
		ResetAt: time.Unix(resetUnix, 0),
	}
}

// retryAfter reads a Retry-After header expressed in seconds.
func retryAfter(resp *http.Response) time.Time {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

// isGitHubHost reports whether reqURL targets the configured GitHub API host,
// or github.com itself when the API is api.github.com.
func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	return strings.EqualFold(base.Host, "api.github.com") && strings.EqualFold(reqURL.Host, "github.com")
}

// redactURL strips query parameters and fragments for safe inclusion in errors.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
