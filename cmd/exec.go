package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/melissarios94/WatchBuddies/api/server"
)

var execCmd = &cobra.Command{
	Use:   "exec <command> [args...]",
	Short: "Run one chat command against the local watchlist and print the reply",
	Example: `  watchbuddies exec addmovie The Matrix
  watchbuddies exec pickrandom 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := server.NewApp(cmd.Context(), cfg, appLogger)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				appLogger.Error("failed to close database", slog.Any("error", err))
			}
		}()

		reply, ok := app.Dispatcher.Dispatch(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if !ok {
			return fmt.Errorf("unknown command %q (known: %s)", args[0], strings.Join(app.Dispatcher.Commands(), ", "))
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}
