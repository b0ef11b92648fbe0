// Package bot turns chat lines into watchlist operations and text replies.
//
// The Dispatcher is transport-agnostic: it takes a command name and its raw
// argument string and always produces exactly one reply. Discord wires it to
// a discordgo session; the CLI "exec" command calls it directly.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/melissarios94/WatchBuddies/internal/github"
	"github.com/melissarios94/WatchBuddies/internal/repository"
	"github.com/melissarios94/WatchBuddies/internal/service"
	"github.com/melissarios94/WatchBuddies/internal/telemetry"
	"github.com/melissarios94/WatchBuddies/internal/tmdb"
	"github.com/melissarios94/WatchBuddies/pkg/utils"
)

// Reply used when a command fails for a reason the user cannot act on.
const internalErrorReply = "Something went wrong, please try again later."

var errUsage = errors.New("missing command argument")

// Service is the subset of the watchlist service the dispatcher drives.
type Service interface {
	AddMovie(ctx context.Context, query string) (*repository.GormMovie, error)
	RemoveMovie(ctx context.Context, query string) (string, error)
	MarkWatched(ctx context.Context, query string) (string, error)
	ListActive(ctx context.Context) ([]repository.GormMovie, error)
	ListWatched(ctx context.Context) ([]repository.GormWatchedMovie, error)
	PickRandom(ctx context.Context, n int) ([]repository.GormMovie, error)
	LatestChange(ctx context.Context) (string, error)
}

type handlerFunc func(ctx context.Context, args string) (string, error)

type command struct {
	arg string // argument placeholder for usage replies; empty if none
	run handlerFunc
}

// Dispatcher maps command names to service calls and reply templates.
type Dispatcher struct {
	svc      Service
	prefix   string
	logger   *slog.Logger
	commands map[string]command
}

// NewDispatcher creates a Dispatcher for lines starting with prefix.
func NewDispatcher(svc Service, prefix string, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{svc: svc, prefix: prefix, logger: logger}
	d.commands = map[string]command{
		"addmovie":        {arg: "title", run: d.addMovie},
		"removemovie":     {arg: "title", run: d.removeMovie},
		"watchedmovie":    {arg: "title", run: d.watchedMovie},
		"viewlist":        {run: d.viewList},
		"viewwatchedlist": {run: d.viewWatchedList},
		"pickrandom":      {arg: "number", run: d.pickRandom},
		"changelog":       {run: d.changelog},
		"test":            {run: d.test},
	}
	return d
}

// Commands returns the known command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleLine parses a prefixed chat line and dispatches it. ok is false when
// the line is not a known command and should be ignored.
func (d *Dispatcher) HandleLine(ctx context.Context, line string) (reply string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, d.prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(line, d.prefix)
	name, args := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, args = rest[:i], rest[i:]
	}
	return d.Dispatch(ctx, name, args)
}

// Dispatch runs one command. Every failure is turned into a reply here.
func (d *Dispatcher) Dispatch(ctx context.Context, name, args string) (string, bool) {
	cmd, ok := d.commands[name]
	if !ok {
		return "", false
	}

	ctx, _ = telemetry.WithRequestID(ctx)
	logger := telemetry.Logger(ctx, d.logger).With(slog.String("command", name))
	start := time.Now()

	args = strings.TrimSpace(args)
	var (
		reply string
		err   error
	)
	if cmd.arg != "" && args == "" {
		reply, err = fmt.Sprintf("Usage: %s%s <%s>", d.prefix, name, cmd.arg), errUsage
	} else {
		reply, err = cmd.run(ctx, args)
	}

	outcome := "ok"
	switch {
	case err == nil:
	case isUserError(err):
		outcome = "rejected"
		logger.InfoContext(ctx, "command rejected", slog.String("reason", err.Error()))
	default:
		outcome = "error"
		reply = internalErrorReply
		logger.ErrorContext(ctx, "command failed", slog.Any("error", err))
	}
	telemetry.ObserveCommand(name, outcome, time.Since(start))
	return reply, true
}

// isUserError reports whether err is an expected outcome with its own reply.
func isUserError(err error) bool {
	var upstream *utils.UpstreamError
	switch {
	case errors.Is(err, errUsage),
		errors.Is(err, service.ErrEmptyTitle),
		errors.Is(err, repository.ErrDuplicateEntry),
		errors.Is(err, repository.ErrRecordNotFound),
		errors.Is(err, repository.ErrInsufficientEntries),
		errors.Is(err, repository.ErrInvalidCount),
		errors.Is(err, tmdb.ErrNoMatch),
		errors.Is(err, github.ErrNoCommits),
		errors.As(err, &upstream):
		return true
	}
	return false
}

func upstreamReply(err error) (string, bool) {
	var upstream *utils.UpstreamError
	if errors.As(err, &upstream) {
		return fmt.Sprintf("API request failed with status %d and response %s.", upstream.StatusCode, upstream.Body), true
	}
	return "", false
}

func (d *Dispatcher) addMovie(ctx context.Context, args string) (string, error) {
	movie, err := d.svc.AddMovie(ctx, args)
	switch {
	case err == nil:
		return fmt.Sprintf("Added %s to the watchlist!", movie.Title), nil
	case errors.Is(err, repository.ErrDuplicateEntry):
		return fmt.Sprintf("%s is already in the watchlist.", args), err
	case errors.Is(err, tmdb.ErrNoMatch):
		return fmt.Sprintf("No movie found with the name '%s'.", args), err
	}
	if reply, ok := upstreamReply(err); ok {
		return reply, err
	}
	return "", err
}

func (d *Dispatcher) removeMovie(ctx context.Context, args string) (string, error) {
	title, err := d.svc.RemoveMovie(ctx, args)
	switch {
	case err == nil:
		return fmt.Sprintf("Removed \"%s\" from the watchlist!", title), nil
	case errors.Is(err, repository.ErrRecordNotFound):
		return fmt.Sprintf("Movie \"%s\" not found in the watchlist.", title), err
	case errors.Is(err, service.ErrEmptyTitle):
		return fmt.Sprintf("Usage: %sremovemovie <title>", d.prefix), err
	}
	return "", err
}

func (d *Dispatcher) watchedMovie(ctx context.Context, args string) (string, error) {
	title, err := d.svc.MarkWatched(ctx, args)
	switch {
	case err == nil:
		return fmt.Sprintf("Moved %s to the watched list!", title), nil
	case errors.Is(err, repository.ErrRecordNotFound):
		return fmt.Sprintf("Movie \"%s\" not found in the watchlist.", title), err
	case errors.Is(err, service.ErrEmptyTitle):
		return fmt.Sprintf("Usage: %swatchedmovie <title>", d.prefix), err
	}
	return "", err
}

func (d *Dispatcher) viewList(ctx context.Context, _ string) (string, error) {
	movies, err := d.svc.ListActive(ctx)
	if err != nil {
		return "", err
	}
	if len(movies) == 0 {
		return "No movies in the watchlist.", nil
	}
	return formatMovies(movies), nil
}

func (d *Dispatcher) viewWatchedList(ctx context.Context, _ string) (string, error) {
	movies, err := d.svc.ListWatched(ctx)
	if err != nil {
		return "", err
	}
	if len(movies) == 0 {
		return "No movies in the watched list.", nil
	}
	lines := make([]string, 0, len(movies))
	for _, m := range movies {
		lines = append(lines, m.Title)
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) pickRandom(ctx context.Context, args string) (string, error) {
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		return "Please provide a positive number of movies to pick.", repository.ErrInvalidCount
	}

	movies, err := d.svc.PickRandom(ctx, n)
	var insufficient *repository.InsufficientEntriesError
	switch {
	case err == nil:
		return "Random picks:\n" + formatMovies(movies), nil
	case errors.As(err, &insufficient):
		return fmt.Sprintf("Only %d movies in the watchlist, cannot pick %d.", insufficient.Available, n), err
	case errors.Is(err, repository.ErrInvalidCount):
		return "Please provide a positive number of movies to pick.", err
	}
	return "", err
}

func (d *Dispatcher) changelog(ctx context.Context, _ string) (string, error) {
	msg, err := d.svc.LatestChange(ctx)
	switch {
	case err == nil && msg != "":
		return "Changelog: " + msg, nil
	case err == nil, errors.Is(err, github.ErrNoCommits):
		return "No changelog available.", err
	}
	if reply, ok := upstreamReply(err); ok {
		return reply, err
	}
	return "", err
}

func (d *Dispatcher) test(context.Context, string) (string, error) {
	return "Test successful!", nil
}

func formatMovies(movies []repository.GormMovie) string {
	lines := make([]string, 0, len(movies))
	for _, m := range movies {
		lines = append(lines, fmt.Sprintf("%d - %s", m.ID, m.Title))
	}
	return strings.Join(lines, "\n")
}
