package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/melissarios94/WatchBuddies/internal/config"
	"github.com/melissarios94/WatchBuddies/pkg/utils"
)

func setupTestRepo(t *testing.T) *GormRepository {
	t.Helper()
	db, err := utils.ConnectToDatabase(&config.Config{DBDriver: config.DriverSQLite, DBPath: ":memory:"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewGormRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func titles(movies []GormMovie) []string {
	out := make([]string, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.Title)
	}
	return out
}

func TestAddMovieThenListIncludesOnce(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	movie, err := repo.AddMovie(ctx, "Inception", "2010-07-16")
	require.NoError(t, err)
	assert.Equal(t, uint(1), movie.ID)

	_, err = repo.AddMovie(ctx, "Heat", "1995-12-15")
	require.NoError(t, err)

	movies, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Inception", "Heat"}, titles(movies))
	assert.Equal(t, "2010-07-16", movies[0].ReleaseDate)
}

func TestAddMovieDuplicateIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	_, err := repo.AddMovie(ctx, "Inception", "2010-07-16")
	require.NoError(t, err)

	_, err = repo.AddMovie(ctx, "Inception", "2010-07-16")
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	_, err = repo.AddMovie(ctx, "inception", "2010-07-16")
	assert.NoError(t, err)

	movies, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, movies, 2)
}

func TestTitleUniqueIndex(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.db.Create(&GormMovie{Title: "Heat", ReleaseDate: "1995-12-15"}).Error)
	err := repo.db.Create(&GormMovie{Title: "Heat", ReleaseDate: "1995-12-15"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestAddMovieConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	// Другой писатель добавляет тот же фильм между проверкой Exists и вставкой
	inserted := false
	require.NoError(t, repo.db.Callback().Query().After("gorm:query").Register("test:concurrent_add", func(tx *gorm.DB) {
		if inserted {
			return
		}
		inserted = true
		require.NoError(t, repo.db.Exec("INSERT INTO movies (title, release_date, created_at) VALUES (?, ?, ?)", "Heat", "1995-12-15", time.Now()).Error)
	}))

	_, err := repo.AddMovie(ctx, "Heat", "1995-12-15")
	require.True(t, inserted)
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	movies, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Heat"}, titles(movies))
}

func TestRemoveMovieIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	_, err := repo.AddMovie(ctx, "Inception", "2010-07-16")
	require.NoError(t, err)

	removed, err := repo.RemoveMovie(ctx, "iNCEPTION")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	movies, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, movies)
}

func TestRemoveMovieReportsOwnStatement(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	// Earlier writes on the same connection must not make a no-op delete look successful.
	_, err := repo.AddMovie(ctx, "Heat", "1995-12-15")
	require.NoError(t, err)
	_, err = repo.RemoveMovie(ctx, "heat")
	require.NoError(t, err)

	removed, err := repo.RemoveMovie(ctx, "Heat")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Zero(t, removed)
}

func TestMoveToWatched(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	_, err := repo.AddMovie(ctx, "Inception", "2010-07-16")
	require.NoError(t, err)

	watched, err := repo.MoveToWatched(ctx, "Inception")
	require.NoError(t, err)
	assert.Equal(t, "Inception", watched.Title)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	list, err := repo.ListWatched(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Inception", list[0].Title)
}

func TestMoveToWatchedNotFoundLeavesTablesUnchanged(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	_, err := repo.AddMovie(ctx, "Inception", "2010-07-16")
	require.NoError(t, err)

	// The lookup is case-sensitive.
	_, err = repo.MoveToWatched(ctx, "inception")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = repo.MoveToWatched(ctx, "Heat")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Inception"}, titles(active))

	watched, err := repo.ListWatched(ctx)
	require.NoError(t, err)
	assert.Empty(t, watched)
}

func TestSampleInsufficientEntries(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	for _, title := range []string{"A", "B"} {
		_, err := repo.AddMovie(ctx, title, "2000-01-01")
		require.NoError(t, err)
	}

	_, err := repo.Sample(ctx, 3)
	require.ErrorIs(t, err, ErrInsufficientEntries)

	var insufficient *InsufficientEntriesError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 3, insufficient.Requested)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, titles(active))
}

func TestSampleReturnsDistinctEntries(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)

	all := []string{"A", "B", "C", "D", "E"}
	for _, title := range all {
		_, err := repo.AddMovie(ctx, title, "2000-01-01")
		require.NoError(t, err)
	}

	for n := 1; n <= len(all); n++ {
		picked, err := repo.Sample(ctx, n)
		require.NoError(t, err)
		require.Len(t, picked, n)

		seen := make(map[uint]bool, n)
		for _, m := range picked {
			assert.False(t, seen[m.ID], "entry %d picked twice", m.ID)
			seen[m.ID] = true
			assert.Contains(t, all, m.Title)
		}
	}
}

func TestSampleUsesShuffle(t *testing.T) {
	ctx := context.Background()
	repo := setupTestRepo(t)
	repo.shuffle = func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	for _, title := range []string{"A", "B", "C"} {
		_, err := repo.AddMovie(ctx, title, "2000-01-01")
		require.NoError(t, err)
	}

	picked, err := repo.Sample(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B"}, titles(picked))
}

func TestSampleInvalidCount(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.Sample(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestCanceledContext(t *testing.T) {
	repo := setupTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.AddMovie(ctx, "Inception", "2010-07-16")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.ListActive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.MoveToWatched(ctx, "Inception")
	assert.ErrorIs(t, err, context.Canceled)
}
