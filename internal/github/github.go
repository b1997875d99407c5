// Package github looks up published versions of the repositories releases
// are registered from.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"fleetdeploy/pkg/models"
)

// DefaultBaseURL is the public GitHub REST API
const DefaultBaseURL = "https://api.github.com"

var repoURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)`)

// Upstream failure kinds. All of them match models.ErrUpstreamUnavailable
// except ErrRepoNotFound, which matches models.ErrNotFound.
var (
	ErrTimeout      = fmt.Errorf("%w: GitHub API timeout", models.ErrUpstreamUnavailable)
	ErrUnreachable  = fmt.Errorf("%w: cannot connect to GitHub API", models.ErrUpstreamUnavailable)
	ErrUnauthorized = fmt.Errorf("%w: GitHub authentication failed", models.ErrUpstreamUnavailable)
	ErrRepoNotFound = fmt.Errorf("repository or releases %w on GitHub", models.ErrNotFound)
	ErrBadStatus    = fmt.Errorf("%w: unexpected GitHub API response", models.ErrUpstreamUnavailable)
)

// Repository is an owner/name pair parsed from a GitHub URL
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// ParseURL extracts owner and repository from https://github.com/owner/repo[/...]
func ParseURL(raw string) (Repository, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	m := repoURLPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Repository{}, fmt.Errorf("%w: invalid GitHub URL format %q", models.ErrInvalidArgument, raw)
	}
	return Repository{Owner: m[1], Name: strings.TrimSuffix(m[2], ".git")}, nil
}

// Client calls the GitHub releases API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a GitHub client with a 10s timeout
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	PublishedAt string `json:"published_at"`
	HTMLURL     string `json:"html_url"`
	Assets      []struct {
		Name               string `json:"name"`
		Size               int64  `json:"size"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// ListReleases returns the published releases of repo, newest first as
// GitHub orders them. token may be empty for public repositories.
func (c *Client) ListReleases(ctx context.Context, repo Repository, token string) ([]models.ReleaseVersion, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, repo.Owner, repo.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build GitHub request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", repo, ErrRepoNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w (status %d)", repo, ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s: %w (status %d)", repo, ErrBadStatus, resp.StatusCode)
	}

	var releases []apiRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("%w: decode releases: %v", ErrBadStatus, err)
	}

	versions := make([]models.ReleaseVersion, 0, len(releases))
	for _, r := range releases {
		v := models.ReleaseVersion{
			TagName:     r.TagName,
			Name:        r.Name,
			PublishedAt: r.PublishedAt,
			HTMLURL:     r.HTMLURL,
			Assets:      make([]models.ReleaseAsset, 0, len(r.Assets)),
		}
		if v.Name == "" {
			v.Name = r.TagName
		}
		for _, a := range r.Assets {
			v.Assets = append(v.Assets, models.ReleaseAsset{
				Name:               a.Name,
				Size:               a.Size,
				BrowserDownloadURL: a.BrowserDownloadURL,
			})
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
