package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"github.com/melissarios94/WatchBuddies/internal/bot"
	"github.com/melissarios94/WatchBuddies/internal/config"
	"github.com/melissarios94/WatchBuddies/internal/github"
	"github.com/melissarios94/WatchBuddies/internal/repository"
	"github.com/melissarios94/WatchBuddies/internal/service"
	"github.com/melissarios94/WatchBuddies/internal/telemetry"
	"github.com/melissarios94/WatchBuddies/internal/tmdb"
	"github.com/melissarios94/WatchBuddies/pkg/utils"
)

// shutdownTimeout ограничивает время остановки HTTP сервера метрик
const shutdownTimeout = 5 * time.Second

// App содержит собранные зависимости бота
type App struct {
	DB         *gorm.DB
	Service    *service.WatchlistService
	Dispatcher *bot.Dispatcher
}

// NewApp подключается к базе данных и собирает сервис и диспетчер команд
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Подключение к базе данных
	db, err := utils.ConnectToDatabase(cfg)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Создание репозитория и таблиц
	repo := repository.NewGormRepository(db, logger)
	if err := repo.Migrate(ctx); err != nil {
		closeDB(db)
		return nil, err
	}

	// Клиенты внешних API
	owner, name, err := cfg.ChangelogOwnerRepo()
	if err != nil {
		closeDB(db)
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	movies := tmdb.NewClient(cfg.TMDBAPIKey, cfg.TMDBBaseURL, httpClient)
	changelog := github.NewClient(owner, name, cfg.GitHubBaseURL, httpClient)

	// Создание сервиса и диспетчера
	svc := service.NewWatchlistService(repo, movies, changelog, logger)
	dispatcher := bot.NewDispatcher(svc, cfg.CommandPrefix, logger)

	return &App{DB: db, Service: svc, Dispatcher: dispatcher}, nil
}

// Close закрывает соединение с базой данных
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// RunServer запускает Discord-бота, а также gRPC health и /metrics, если они настроены.
// Возвращается после отмены ctx или при ошибке любого из компонентов.
func RunServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateBot(); err != nil {
		return err
	}
	telemetry.Init()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	discord, err := bot.NewDiscord(cfg.DiscordToken, app.Dispatcher, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", cfg.GRPCPort)
		if err != nil {
			logger.Error("failed to listen", slog.Any("error", err))
			return fmt.Errorf("failed to listen: %w", err)
		}
		s, hs := newHealthServer()
		logger.Info("starting gRPC health server", slog.String("port", cfg.GRPCPort))
		g.Go(func() error {
			if err := s.Serve(lis); err != nil {
				return fmt.Errorf("failed to serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			hs.Shutdown()
			s.GracefulStop()
			return nil
		})
	}

	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr)
		logger.Info("starting metrics server", slog.String("addr", cfg.MetricsAddr))
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return discord.Run(ctx)
	})

	return g.Wait()
}

// newHealthServer создает gRPC сервер со стандартным сервисом grpc.health.v1
func newHealthServer() (*grpc.Server, *health.Server) {
	s := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

// newMetricsServer создает HTTP сервер, отдающий метрики Prometheus
func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
