package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/melissarios94/WatchBuddies/api/server"
	"github.com/melissarios94/WatchBuddies/internal/config"
	"github.com/melissarios94/WatchBuddies/pkg/logger"
)

var (
	// cfg и appLogger инициализируются в PersistentPreRunE
	cfg       *config.Config
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "watchbuddies",
	Short: "WatchBuddies keeps a shared movie watchlist for a Discord server",
	Long: `WatchBuddies is a Discord bot that keeps a shared movie watchlist.
Movies are resolved against TMDB and stored in a local SQLite database
(or PostgreSQL). Without a subcommand the bot is started.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve chat commands",
	Args:  cobra.NoArgs,
	RunE:  runBot,
}

func init() {
	cobra.OnFinalize(teardown)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup загружает конфигурацию и инициализирует логгер
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		return err
	}

	opts := logger.Options{
		ServiceName:  cfg.ServiceName,
		Level:        cfg.LogLevel,
		BufferSize:   cfg.LogBufferSize,
		LogDir:       cfg.LogDir,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	}
	// Для exec ответ бота печатается в stdout, поэтому логи уходят в stderr
	if cmd.Name() == execCmd.Name() {
		opts.Stdout = os.Stderr
	}

	appLogger, err = logger.NewLogger(opts)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	return nil
}

// teardown сбрасывает буферы логгера после выполнения любой команды
func teardown() {
	if appLogger != nil {
		logger.Close(appLogger)
		appLogger = nil
	}
}

// runBot запускает бота до получения SIGINT или SIGTERM
func runBot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.RunServer(ctx, cfg, appLogger); err != nil {
		appLogger.Error("bot stopped with error", slog.Any("error", err))
		return err
	}
	appLogger.Info("bot stopped")
	return nil
}
