// Package github reads the latest commit message of a fixed repository, used
// as the bot's changelog.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/melissarios94/WatchBuddies/internal/telemetry"
	"github.com/melissarios94/WatchBuddies/pkg/utils"
)

// DefaultBaseURL is the GitHub REST API root.
const DefaultBaseURL = "https://api.github.com"

// ErrNoCommits is returned when the repository has no commits to report.
var ErrNoCommits = errors.New("github: no commits")

type commitEntry struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
	} `json:"commit"`
}

// Client lists commits of one repository.
type Client struct {
	owner   string
	repo    string
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for owner/repo. An empty baseURL means
// DefaultBaseURL; a nil httpClient means http.DefaultClient.
func NewClient(owner, repo, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		owner:   owner,
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// LatestChange returns the message of the most recent commit.
func (c *Client) LatestChange(ctx context.Context) (string, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/commits?per_page=1",
		c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("github request build: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.ObserveUpstream("github", 0)
		return "", fmt.Errorf("github commits %s/%s: %w", c.owner, c.repo, err)
	}
	defer resp.Body.Close()
	telemetry.ObserveUpstream("github", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return "", utils.NewUpstreamError("github", resp)
	}

	var commits []commitEntry
	if err := json.NewDecoder(resp.Body).Decode(&commits); err != nil {
		return "", fmt.Errorf("github decode: %w", err)
	}
	if len(commits) == 0 {
		return "", ErrNoCommits
	}
	return commits[0].Commit.Message, nil
}
