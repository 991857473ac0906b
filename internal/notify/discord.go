package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// severityColors map alert severities to Discord embed accent colors.
var severityColors = map[string]int{
	SeverityInfo:     0x3498db,
	SeverityWarning:  0xf1c40f,
	SeverityCritical: 0xe74c3c,
}

// DiscordSink posts alerts to a Discord channel through an incoming webhook.
// Delivery runs on the caller's goroutine with a short timeout; failures are
// logged and swallowed.
type DiscordSink struct {
	session   *discordgo.Session
	webhookID string
	token     string
	log       *slog.Logger
	timeout   time.Duration
}

var _ Sink = (*DiscordSink)(nil)

// NewDiscordSink creates a sink for the given webhook ID and token. No bot
// credentials are needed; webhook execution authenticates with the token.
func NewDiscordSink(webhookID, token string, log *slog.Logger) (*DiscordSink, error) {
	if webhookID == "" || token == "" {
		return nil, fmt.Errorf("notify: webhook id and token must not be empty")
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &DiscordSink{
		session:   session,
		webhookID: webhookID,
		token:     token,
		log:       log,
		timeout:   5 * time.Second,
	}, nil
}

// Alert implements [Sink].
func (d *DiscordSink) Alert(ctx context.Context, a Alert) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var fields []*discordgo.MessageEmbedField
	for k, v := range a.Details {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   k,
			Value:  fmt.Sprint(v),
			Inline: true,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Message,
		Color:       severityColors[a.Severity],
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: a.Code},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		d.log.Warn("discord alert delivery failed", "code", a.Code, "error", err)
	}
}
