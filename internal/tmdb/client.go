// Package tmdb resolves free-text movie titles against The Movie Database.
//
// Only the search endpoint is used: GET {base}/search/movie?api_key=…&query=….
// The first result is taken as the best match.
package tmdb

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

// DefaultBaseURL is the TMDB v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// ErrNoMatch is returned when the search succeeds but yields no results.
var ErrNoMatch = errors.New("tmdb: no matching movie")

// Movie is the canonical title and release date of a search hit.
type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
}

type searchResponse struct {
	Page         int     `json:"page"`
	TotalResults int     `json:"total_results"`
	Results      []Movie `json:"results"`
}

// Client is an HTTP client for the TMDB search API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Client. An empty baseURL means DefaultBaseURL; a nil
// httpClient means http.DefaultClient.
func NewClient(apiKey, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Search looks up title and returns the first result.
// Non-200 responses come back as *utils.UpstreamError.
func (c *Client) Search(ctx context.Context, title string) (*Movie, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("tmdb: TMDB_API_KEY not set")
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("query", title)
	reqURL := c.baseURL + "/search/movie?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tmdb request build: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.ObserveUpstream("tmdb", 0)
		return nil, fmt.Errorf("tmdb search %q: %w", title, err)
	}
	defer resp.Body.Close()
	telemetry.ObserveUpstream("tmdb", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewUpstreamError("tmdb", resp)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("tmdb decode: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, ErrNoMatch
	}
	movie := result.Results[0]
	return &movie, nil
}
