package repository

import (
	"time"
)

// GormMovie представляет фильм в активном списке просмотра
type GormMovie struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"not null;uniqueIndex"`
	ReleaseDate string `gorm:"not null"`
	CreatedAt   time.Time
}

// TableName возвращает имя таблицы для модели GormMovie
func (GormMovie) TableName() string {
	return "movies"
}

// GormWatchedMovie представляет фильм, перенесенный в список просмотренных
type GormWatchedMovie struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"not null"`
	CreatedAt time.Time
}

// TableName возвращает имя таблицы для модели GormWatchedMovie
func (GormWatchedMovie) TableName() string {
	return "watched_movies"
}
