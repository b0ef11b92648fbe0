package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// MaxMessageLength is Discord's per-message character limit.
const MaxMessageLength = 2000

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord feeds guild messages into a Dispatcher and posts the replies.
type Discord struct {
	session    *discordgo.Session
	dispatcher *Dispatcher
	logger     *slog.Logger
	ctx        context.Context
}

// NewDiscord creates a bot session for token. The session is not opened until Run.
func NewDiscord(token string, dispatcher *Dispatcher, logger *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	b := &Discord{
		session:    session,
		dispatcher: dispatcher,
		logger:     logger,
		ctx:        context.Background(),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onMessageCreate)
	return b, nil
}

// Run opens the gateway connection and blocks until ctx is canceled.
func (b *Discord) Run(ctx context.Context) error {
	b.ctx = ctx
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.logger.InfoContext(ctx, "discord session opened")

	<-ctx.Done()

	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	b.logger.Info("discord session closed")
	return nil
}

func (b *Discord) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		b.logger.Info(fmt.Sprintf("we have logged in as %s", r.User.String()))
	}
}

func (b *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(b.ctx, s, m)
}

func (b *Discord) handleMessage(ctx context.Context, sender messageSender, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	reply, ok := b.dispatcher.HandleLine(ctx, m.Content)
	if !ok || reply == "" {
		return
	}
	for _, chunk := range SplitMessage(reply, MaxMessageLength) {
		// Discord rejects whitespace-only messages
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if _, err := sender.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			b.logger.ErrorContext(ctx, "failed to send reply",
				slog.String("channel_id", m.ChannelID), slog.Any("error", err))
			return
		}
	}
}

// SplitMessage breaks text into chunks of at most limit characters, cutting
// at line breaks where possible.
func SplitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		cur     strings.Builder
		n       int
		started bool
	)
	flush := func() {
		if started {
			chunks = append(chunks, cur.String())
			cur.Reset()
			n = 0
			started = false
		}
	}
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		// Lines that cannot fit even on their own are cut hard.
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		need := len(runes)
		if started {
			need++
		}
		if n+need > limit {
			flush()
			need = len(runes)
		}
		// A blank line opening a chunk is kept as an empty first line.
		if started {
			cur.WriteByte('\n')
		}
		cur.WriteString(string(runes))
		n += need
		started = true
	}
	flush()
	return chunks
}
