package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Поддерживаемые драйверы базы данных
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config содержит параметры конфигурации приложения
type Config struct {
	DiscordToken  string        // Токен Discord-бота
	CommandPrefix string        // Префикс команд в чате
	TMDBAPIKey    string        // Ключ API TMDB
	TMDBBaseURL   string        // Базовый URL API TMDB
	GitHubBaseURL string        // Базовый URL API GitHub
	ChangelogRepo string        // Репозиторий для команды changelog (owner/repo)
	HTTPTimeout   time.Duration // Таймаут исходящих HTTP запросов
	DBDriver      string        // Драйвер базы данных (sqlite или postgres)
	DBPath        string        // Путь к файлу SQLite
	DBHost        string        // Хост базы данных
	DBPort        string        // Порт базы данных
	DBUser        string        // Пользователь базы данных
	DBPassword    string        // Пароль базы данных
	DBName        string        // Имя базы данных
	DBSSLMode     string        // Режим SSL для базы данных
	KafkaBrokers  []string      // Список брокеров Kafka (пусто - без Kafka)
	KafkaTopic    string        // Тема Kafka
	GRPCPort      string        // Порт для gRPC health сервиса (пусто - выключен)
	MetricsAddr   string        // Адрес для /metrics (пусто - выключен)
	ServiceName   string        // Имя сервиса
	LogDir        string        // Каталог для файловых логов
	LogLevel      slog.Level    // Минимальный уровень логирования
	LogBufferSize int           // Размер буфера для логов
}

// LoadConfig загружает конфигурацию из .env файла и переменных окружения
func LoadConfig() (*Config, error) {
	// .env необязателен: переменные могут прийти из окружения процесса
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		CommandPrefix: getEnv("COMMAND_PREFIX", "!"),
		TMDBAPIKey:    os.Getenv("TMDB_API_KEY"),
		TMDBBaseURL:   getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		GitHubBaseURL: getEnv("GITHUB_BASE_URL", "https://api.github.com"),
		ChangelogRepo: getEnv("CHANGELOG_REPO", "melissarios94/WatchBuddies"),
		DBDriver:      strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:        getEnv("DB_PATH", "movies.db"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		KafkaTopic:    os.Getenv("KAFKA_TOPIC"),
		GRPCPort:      os.Getenv("GRPC_PORT"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		ServiceName:   getEnv("SERVICE_NAME", "watchbuddies"),
		LogDir:        getEnv("LOG_DIR", "logs"),
	}

	// Преобразуем KAFKA_BROKERS в []string, пустые элементы отбрасываем
	for _, broker := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
		}
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("missing required environment variable: KAFKA_TOPIC")
	}

	// Преобразуем LOG_BUFFER_SIZE в int с дефолтным значением 100, если не задано корректно
	logBufferSize, err := strconv.Atoi(os.Getenv("LOG_BUFFER_SIZE"))
	if err != nil || logBufferSize <= 0 {
		logBufferSize = 100
	}
	cfg.LogBufferSize = logBufferSize

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL value: %q", v)
		}
	}

	cfg.HTTPTimeout = 10 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT value: %q", v)
		}
		cfg.HTTPTimeout = d
	}

	if _, _, err := cfg.ChangelogOwnerRepo(); err != nil {
		return nil, err
	}

	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		// Для PostgreSQL проверяем обязательные переменные окружения
		for _, envVar := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
			if os.Getenv(envVar) == "" {
				return nil, fmt.Errorf("missing required environment variable: %s", envVar)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER value: %q", cfg.DBDriver)
	}

	return cfg, nil
}

// ValidateBot проверяет переменные, без которых бот не может подключиться к Discord
func (c *Config) ValidateBot() error {
	var missing []string
	if c.DiscordToken == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.TMDBAPIKey == "" {
		missing = append(missing, "TMDB_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variable: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ChangelogOwnerRepo разбирает CHANGELOG_REPO на владельца и имя репозитория
func (c *Config) ChangelogOwnerRepo() (string, string, error) {
	owner, repo, ok := strings.Cut(c.ChangelogRepo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid CHANGELOG_REPO value: %q (expected owner/repo)", c.ChangelogRepo)
	}
	return owner, repo, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
