package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melissarios94/WatchBuddies/pkg/utils"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("secret", srv.URL+"/", srv.Client())
}

func TestSearchReturnsFirstResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/movie", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Equal(t, "inception & co", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":1,"total_results":2,"results":[
			{"id":27205,"title":"Inception","release_date":"2010-07-16"},
			{"id":1,"title":"Inception: The Cobol Job","release_date":"2010-12-07"}]}`))
	})

	movie, err := client.Search(context.Background(), "inception & co")
	require.NoError(t, err)
	assert.Equal(t, "Inception", movie.Title)
	assert.Equal(t, "2010-07-16", movie.ReleaseDate)
	assert.Equal(t, 27205, movie.ID)
}

func TestSearchNoMatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"page":1,"total_results":0,"results":[]}`))
	})

	_, err := client.Search(context.Background(), "zzzz")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestSearchUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status_code":7,"status_message":"Invalid API key"}`))
	})

	_, err := client.Search(context.Background(), "Inception")
	var upstream *utils.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "Invalid API key")
}

func TestSearchBadJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Search(context.Background(), "Inception")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMatch)
}

func TestSearchRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "", nil).Search(context.Background(), "Inception")
	assert.Error(t, err)
}

func TestSearchCanceledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "Inception")
	assert.ErrorIs(t, err, context.Canceled)
}
