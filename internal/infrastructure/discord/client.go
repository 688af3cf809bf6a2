package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/application/notification"
	"github.com/bimakw/ergo-monitor/internal/config"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

const (
	maxContentLength     = 2000
	maxDescriptionLength = 4096
	embedColor           = 0x3498db
)

// Ensure Client implements notification.Channel
var _ notification.Channel = (*Client)(nil)

// Client sends messages to Discord channels and threads
type Client struct {
	session *discordgo.Session
	logger  *zap.Logger
	now     func() time.Time

	verify      func(ctx context.Context) error
	sendComplex func(ctx context.Context, channelID string, msg *discordgo.MessageSend) error
	sendContent func(ctx context.Context, channelID, content string) error
}

// NewClient creates a Discord client for the bot token
func NewClient(cfg config.DiscordConfig, logger *zap.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &Client{
		session: session,
		logger:  logger,
		now:     time.Now,
		verify: func(ctx context.Context) error {
			_, err := session.User("@me", discordgo.WithContext(ctx))
			return err
		},
		sendComplex: func(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
			_, err := session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
			return err
		},
		sendContent: func(ctx context.Context, channelID, content string) error {
			_, err := session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
			return err
		},
	}, nil
}

// Open verifies the bot token
func (c *Client) Open(ctx context.Context) error {
	if err := c.verify(ctx); err != nil {
		return fmt.Errorf("failed to verify discord bot: %w", err)
	}
	c.logger.Info("Discord bot verified")
	return nil
}

// Close closes the session
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

// Send implements notification.Channel. A topic id addresses a thread channel.
func (c *Client) Send(ctx context.Context, msg notification.Message, dest entities.Destination) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	channelID := dest.ChannelID
	if dest.TopicID != nil {
		channelID = strconv.FormatInt(*dest.TopicID, 10)
	}

	var err error
	switch msg.Variant {
	case notification.VariantRich:
		err = c.sendComplex(ctx, channelID, &discordgo.MessageSend{
			Embed: &discordgo.MessageEmbed{
				Type:        discordgo.EmbedTypeRich,
				Description: truncate(msg.Text, maxDescriptionLength),
				Color:       embedColor,
				Timestamp:   c.now().Format(time.RFC3339),
			},
		})
	case notification.VariantPlain:
		err = c.sendComplex(ctx, channelID, &discordgo.MessageSend{
			Content: truncate(msg.Text, maxContentLength),
		})
	default:
		err = c.sendContent(ctx, channelID, truncate(msg.Text, maxContentLength))
	}

	return classify(err)
}

// classify maps a rejected payload to notification.ErrFormattingRejected
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %v", notification.ErrFormattingRejected, err)
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
