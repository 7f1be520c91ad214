package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Release is the subset of the GitHub release resource the updater reads.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// maxResponseSize caps the release payload read from the API.
const maxResponseSize = 4 << 20

// Client fetches releases from the GitHub REST API.
type Client struct {
	http      *http.Client
	endpoint  string
	userAgent string
}

// NewClient creates a Client for endpoint (e.g. https://api.github.com).
func NewClient(httpClient *http.Client, endpoint, userAgent string) *Client {
	return &Client{
		http:      httpClient,
		endpoint:  strings.TrimRight(endpoint, "/"),
		userAgent: userAgent,
	}
}

// LatestReleaseURL returns the API URL of the latest release of repo.
func (c *Client) LatestReleaseURL(repo string) string {
	return fmt.Sprintf("%s/repos/%s/releases/latest", c.endpoint, repo)
}

// LatestRelease fetches the latest published release of repo ("owner/name").
func (c *Client) LatestRelease(ctx context.Context, repo string) (*Release, error) {
	url := c.LatestReleaseURL(repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed: %s returned %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rel Release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("failed to parse release response: %w", err)
	}
	if rel.TagName == "" {
		return nil, fmt.Errorf("no tag_name in release response")
	}
	return &rel, nil
}
