package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExecCommand(t *testing.T) {
	tmdbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix","release_date":"1999-03-30"}]}`))
	}))
	defer tmdbSrv.Close()

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("TMDB_API_KEY", "key")
	t.Setenv("TMDB_BASE_URL", tmdbSrv.URL)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "movies.db"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("KAFKA_BROKERS", "")

	out, err := executeCLI(t, "exec", "addmovie", "the", "matrix")
	require.NoError(t, err)
	assert.Contains(t, out, "Added The Matrix to the watchlist!")

	out, err = executeCLI(t, "exec", "viewlist")
	require.NoError(t, err)
	assert.Contains(t, out, "1 - The Matrix")

	_, err = executeCLI(t, "exec", "dance")
	assert.ErrorContains(t, err, "unknown command")
}
