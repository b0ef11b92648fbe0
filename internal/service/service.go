package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/melissarios94/WatchBuddies/internal/repository"
	"github.com/melissarios94/WatchBuddies/internal/tmdb"
)

// ErrEmptyTitle возвращается, когда название фильма не указано
var ErrEmptyTitle = errors.New("movie title is empty")

// MovieSearcher ищет фильм во внешнем каталоге метаданных
type MovieSearcher interface {
	Search(ctx context.Context, title string) (*tmdb.Movie, error)
}

// ChangelogSource возвращает описание последнего изменения бота
type ChangelogSource interface {
	LatestChange(ctx context.Context) (string, error)
}

// WatchlistService связывает репозиторий списков с внешними API
type WatchlistService struct {
	repo      repository.MovieRepository
	search    MovieSearcher
	changelog ChangelogSource
	logger    *slog.Logger
}

// NewWatchlistService создает новый экземпляр WatchlistService
func NewWatchlistService(repo repository.MovieRepository, search MovieSearcher, changelog ChangelogSource, logger *slog.Logger) *WatchlistService {
	return &WatchlistService{repo: repo, search: search, changelog: changelog, logger: logger}
}

// checkContextCancelled проверяет отмену контекста и логирует ошибку
func (s *WatchlistService) checkContextCancelled(ctx context.Context, method string) error {
	select {
	case <-ctx.Done():
		s.logger.ErrorContext(ctx, fmt.Sprintf("%s operation canceled", method), slog.Any("error", ctx.Err()))
		return ctx.Err()
	default:
		return nil
	}
}

// AddMovie находит фильм в TMDB и добавляет его в активный список под каноническим названием
func (s *WatchlistService) AddMovie(ctx context.Context, query string) (*repository.GormMovie, error) {
	if err := s.checkContextCancelled(ctx, "AddMovie"); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyTitle
	}

	// Уже добавленное под тем же названием не требует запроса к TMDB
	exists, err := s.repo.Exists(ctx, query)
	if err != nil {
		return nil, err
	}
	if exists {
		s.logger.InfoContext(ctx, fmt.Sprintf("movie already in watchlist: %q", query))
		return nil, repository.ErrDuplicateEntry
	}

	found, err := s.search.Search(ctx, query)
	if err != nil {
		if errors.Is(err, tmdb.ErrNoMatch) {
			s.logger.InfoContext(ctx, fmt.Sprintf("no movie found for query: %q", query))
		} else {
			s.logger.ErrorContext(ctx, fmt.Sprintf("movie lookup failed for query: %q", query), slog.Any("error", err))
		}
		return nil, err
	}

	movie, err := s.repo.AddMovie(ctx, found.Title, found.ReleaseDate)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, fmt.Sprintf("movie added to watchlist: %q resolved to %q (%s)", query, movie.Title, movie.ReleaseDate))
	return movie, nil
}

// RemoveMovie удаляет фильм из активного списка без учета регистра.
// Возвращает название в том виде, в каком оно искалось (без обрамляющих кавычек).
func (s *WatchlistService) RemoveMovie(ctx context.Context, query string) (string, error) {
	if err := s.checkContextCancelled(ctx, "RemoveMovie"); err != nil {
		return "", err
	}

	title := cleanTitle(query)
	if title == "" {
		return "", ErrEmptyTitle
	}

	if _, err := s.repo.RemoveMovie(ctx, title); err != nil {
		return title, err
	}
	return title, nil
}

// MarkWatched переносит фильм в список просмотренных (название сравнивается с учетом регистра)
func (s *WatchlistService) MarkWatched(ctx context.Context, query string) (string, error) {
	if err := s.checkContextCancelled(ctx, "MarkWatched"); err != nil {
		return "", err
	}

	title := cleanTitle(query)
	if title == "" {
		return "", ErrEmptyTitle
	}

	watched, err := s.repo.MoveToWatched(ctx, title)
	if err != nil {
		return title, err
	}
	return watched.Title, nil
}

// ListActive возвращает активный список просмотра
func (s *WatchlistService) ListActive(ctx context.Context) ([]repository.GormMovie, error) {
	if err := s.checkContextCancelled(ctx, "ListActive"); err != nil {
		return nil, err
	}
	return s.repo.ListActive(ctx)
}

// ListWatched возвращает список просмотренных фильмов
func (s *WatchlistService) ListWatched(ctx context.Context) ([]repository.GormWatchedMovie, error) {
	if err := s.checkContextCancelled(ctx, "ListWatched"); err != nil {
		return nil, err
	}
	return s.repo.ListWatched(ctx)
}

// PickRandom выбирает n случайных фильмов из активного списка
func (s *WatchlistService) PickRandom(ctx context.Context, n int) ([]repository.GormMovie, error) {
	if err := s.checkContextCancelled(ctx, "PickRandom"); err != nil {
		return nil, err
	}

	movies, err := s.repo.Sample(ctx, n)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, fmt.Sprintf("picked %d random movies", len(movies)))
	return movies, nil
}

// LatestChange возвращает описание последнего изменения бота
func (s *WatchlistService) LatestChange(ctx context.Context) (string, error) {
	if err := s.checkContextCancelled(ctx, "LatestChange"); err != nil {
		return "", err
	}

	msg, err := s.changelog.LatestChange(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to fetch changelog", slog.Any("error", err))
		return "", err
	}
	return strings.TrimSpace(msg), nil
}

// cleanTitle обрезает пробелы и одну пару обрамляющих двойных кавычек
func cleanTitle(query string) string {
	title := strings.TrimSpace(query)
	if len(title) >= 2 && strings.HasPrefix(title, `"`) && strings.HasSuffix(title, `"`) {
		title = strings.TrimSpace(title[1 : len(title)-1])
	}
	return title
}
