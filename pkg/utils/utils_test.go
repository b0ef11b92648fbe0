package utils

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melissarios94/WatchBuddies/internal/config"
)

func TestConnectToDatabaseSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "movies.db")
	db, err := ConnectToDatabase(&config.Config{DBDriver: config.DriverSQLite, DBPath: path})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, sqlDB.Ping())
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.FileExists(t, path)
}

func TestConnectToDatabaseUnsupportedDriver(t *testing.T) {
	_, err := ConnectToDatabase(&config.Config{DBDriver: "oracle"})
	assert.Error(t, err)
}

func TestNewUpstreamError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusUnauthorized,
		Body:       io.NopCloser(strings.NewReader(" {\"status_message\":\"Invalid API key\"}\n")),
	}
	err := NewUpstreamError("tmdb", resp)
	assert.Equal(t, http.StatusUnauthorized, err.StatusCode)
	assert.Equal(t, `{"status_message":"Invalid API key"}`, err.Body)
	assert.Contains(t, err.Error(), "tmdb: unexpected status 401")

	var wrapped error = err
	var upstream *UpstreamError
	assert.True(t, errors.As(wrapped, &upstream))
}

func TestNewUpstreamErrorTruncatesBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader(strings.Repeat("x", maxUpstreamBody*2))),
	}
	err := NewUpstreamError("github", resp)
	assert.Len(t, err.Body, maxUpstreamBody)
}
