package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"gorm.io/gorm"
)

var (
	// ErrRecordNotFound возвращается, когда запись не найдена
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateEntry возвращается при попытке создать дублирующуюся запись
	ErrDuplicateEntry = errors.New("duplicate entry")
	// ErrInsufficientEntries возвращается, когда в списке меньше записей, чем запрошено
	ErrInsufficientEntries = errors.New("insufficient entries")
	// ErrInvalidCount возвращается при неположительном размере выборки
	ErrInvalidCount = errors.New("count must be positive")
)

// InsufficientEntriesError сообщает, сколько записей доступно для выборки
type InsufficientEntriesError struct {
	Requested int
	Available int
}

func (e *InsufficientEntriesError) Error() string {
	return fmt.Sprintf("insufficient entries: requested %d, available %d", e.Requested, e.Available)
}

// Is позволяет сравнивать ошибку с ErrInsufficientEntries через errors.Is
func (e *InsufficientEntriesError) Is(target error) bool {
	return target == ErrInsufficientEntries
}

// MovieRepository представляет интерфейс репозитория для работы со списками фильмов
type MovieRepository interface {
	AddMovie(ctx context.Context, title, releaseDate string) (*GormMovie, error)
	Exists(ctx context.Context, title string) (bool, error)
	RemoveMovie(ctx context.Context, title string) (int64, error)
	MoveToWatched(ctx context.Context, title string) (*GormWatchedMovie, error)
	ListActive(ctx context.Context) ([]GormMovie, error)
	ListWatched(ctx context.Context) ([]GormWatchedMovie, error)
	Sample(ctx context.Context, n int) ([]GormMovie, error)
}

// GormRepository реализует MovieRepository поверх gorm (SQLite или PostgreSQL)
type GormRepository struct {
	db      *gorm.DB
	logger  *slog.Logger
	shuffle func(n int, swap func(i, j int))
}

// NewGormRepository создает новый экземпляр GormRepository
func NewGormRepository(db *gorm.DB, logger *slog.Logger) *GormRepository {
	return &GormRepository{db: db, logger: logger, shuffle: rand.Shuffle}
}

// Migrate создает таблицы списков, если их еще нет
func (r *GormRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&GormMovie{}, &GormWatchedMovie{}); err != nil {
		r.logger.ErrorContext(ctx, "failed to migrate watchlist tables", slog.Any("error", err))
		return fmt.Errorf("failed to migrate watchlist tables: %w", err)
	}
	return nil
}

// checkContextCancelled проверяет отмену контекста и логирует ошибку
func (r *GormRepository) checkContextCancelled(ctx context.Context, method string) error {
	select {
	case <-ctx.Done():
		r.logger.ErrorContext(ctx, fmt.Sprintf("%s operation canceled", method), slog.Any("error", ctx.Err()))
		return ctx.Err()
	default:
		return nil
	}
}

// AddMovie добавляет фильм в активный список просмотра
func (r *GormRepository) AddMovie(ctx context.Context, title, releaseDate string) (*GormMovie, error) {
	if err := r.checkContextCancelled(ctx, "AddMovie"); err != nil {
		return nil, err
	}

	// Сначала проверяем, существует ли уже такая запись (совпадение с учетом регистра)
	exists, err := r.Exists(ctx, title)
	if err != nil {
		return nil, err
	}
	if exists {
		r.logger.WarnContext(ctx, fmt.Sprintf("movie already in watchlist: %q", title))
		return nil, ErrDuplicateEntry
	}

	movie := &GormMovie{Title: title, ReleaseDate: releaseDate}
	if err := r.db.WithContext(ctx).Create(movie).Error; err != nil {
		// Уникальный индекс ловит гонку двух одновременных добавлений
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.logger.WarnContext(ctx, fmt.Sprintf("movie already in watchlist: %q", title))
			return nil, ErrDuplicateEntry
		}
		r.logger.ErrorContext(ctx, fmt.Sprintf("failed to add movie to watchlist: %q", title), slog.Any("error", err))
		return nil, err
	}

	r.logger.InfoContext(ctx, fmt.Sprintf("movie added to watchlist successfully: %q (id %d)", title, movie.ID))
	return movie, nil
}

// Exists проверяет, находится ли фильм в активном списке (с учетом регистра)
func (r *GormRepository) Exists(ctx context.Context, title string) (bool, error) {
	if err := r.checkContextCancelled(ctx, "Exists"); err != nil {
		return false, err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&GormMovie{}).Where("title = ?", title).Count(&count).Error; err != nil {
		r.logger.ErrorContext(ctx, fmt.Sprintf("failed to check movie in watchlist: %q", title), slog.Any("error", err))
		return false, err
	}
	return count > 0, nil
}

// RemoveMovie удаляет из активного списка все фильмы с названием без учета регистра
// и возвращает число удаленных строк
func (r *GormRepository) RemoveMovie(ctx context.Context, title string) (int64, error) {
	if err := r.checkContextCancelled(ctx, "RemoveMovie"); err != nil {
		return 0, err
	}

	result := r.db.WithContext(ctx).Where("LOWER(title) = LOWER(?)", title).Delete(&GormMovie{})
	if result.Error != nil {
		r.logger.ErrorContext(ctx, fmt.Sprintf("failed to remove movie from watchlist: %q", title), slog.Any("error", result.Error))
		return 0, result.Error
	}

	// Успех определяется числом строк, затронутых именно этим запросом
	if result.RowsAffected == 0 {
		r.logger.WarnContext(ctx, fmt.Sprintf("movie not found in watchlist: %q", title))
		return 0, ErrRecordNotFound
	}

	r.logger.InfoContext(ctx, fmt.Sprintf("movie removed from watchlist successfully: %q (%d rows)", title, result.RowsAffected))
	return result.RowsAffected, nil
}

// MoveToWatched переносит фильм из активного списка в список просмотренных одной транзакцией
func (r *GormRepository) MoveToWatched(ctx context.Context, title string) (*GormWatchedMovie, error) {
	if err := r.checkContextCancelled(ctx, "MoveToWatched"); err != nil {
		return nil, err
	}

	var watched *GormWatchedMovie
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var movie GormMovie
		if err := tx.Where("title = ?", title).First(&movie).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}

		watched = &GormWatchedMovie{Title: movie.Title}
		if err := tx.Create(watched).Error; err != nil {
			return err
		}
		return tx.Delete(&movie).Error
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			r.logger.WarnContext(ctx, fmt.Sprintf("movie not found in watchlist: %q", title))
			return nil, err
		}
		r.logger.ErrorContext(ctx, fmt.Sprintf("failed to move movie to watched list: %q", title), slog.Any("error", err))
		return nil, err
	}

	r.logger.InfoContext(ctx, fmt.Sprintf("movie moved to watched list successfully: %q", title))
	return watched, nil
}

// ListActive возвращает активный список в порядке добавления
func (r *GormRepository) ListActive(ctx context.Context) ([]GormMovie, error) {
	if err := r.checkContextCancelled(ctx, "ListActive"); err != nil {
		return nil, err
	}

	var movies []GormMovie
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&movies).Error; err != nil {
		r.logger.ErrorContext(ctx, "failed to get watchlist", slog.Any("error", err))
		return nil, err
	}

	r.logger.DebugContext(ctx, fmt.Sprintf("watchlist fetched successfully: %d movies", len(movies)))
	return movies, nil
}

// ListWatched возвращает список просмотренных в порядке переноса
func (r *GormRepository) ListWatched(ctx context.Context) ([]GormWatchedMovie, error) {
	if err := r.checkContextCancelled(ctx, "ListWatched"); err != nil {
		return nil, err
	}

	var movies []GormWatchedMovie
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&movies).Error; err != nil {
		r.logger.ErrorContext(ctx, "failed to get watched list", slog.Any("error", err))
		return nil, err
	}

	r.logger.DebugContext(ctx, fmt.Sprintf("watched list fetched successfully: %d movies", len(movies)))
	return movies, nil
}

// Sample выбирает n различных фильмов из активного списка случайным образом
func (r *GormRepository) Sample(ctx context.Context, n int) ([]GormMovie, error) {
	if err := r.checkContextCancelled(ctx, "Sample"); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, ErrInvalidCount
	}

	movies, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(movies) < n {
		r.logger.WarnContext(ctx, fmt.Sprintf("cannot pick %d movies, only %d in watchlist", n, len(movies)))
		return nil, &InsufficientEntriesError{Requested: n, Available: len(movies)}
	}

	r.shuffle(len(movies), func(i, j int) {
		movies[i], movies[j] = movies[j], movies[i]
	})
	return movies[:n], nil
}
