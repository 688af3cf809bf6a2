package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/ergo-monitor/internal/application/notification"
	"github.com/bimakw/ergo-monitor/internal/config"
	"github.com/bimakw/ergo-monitor/internal/domain/entities"
)

// maxRateLimitWaits bounds consecutive 429 responses for one message
const maxRateLimitWaits = 5

// Ensure Client implements notification.Channel
var _ notification.Channel = (*Client)(nil)

// Client sends messages through the Telegram Bot API
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     config.TelegramConfig
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// sendMessageRequest is the sendMessage payload. Optional fields are omitted
// so the minimal variant carries only the text and routing.
type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	MessageThreadID       *int64 `json:"message_thread_id,omitempty"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// APIError is returned for unsuccessful Bot API responses
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram returned status %d: %s", e.StatusCode, e.Description)
}

// NewClient creates a new Telegram client
func NewClient(cfg config.TelegramConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Open verifies the bot token with getMe
func (c *Client) Open(ctx context.Context) error {
	if c.config.BotToken == "" {
		return fmt.Errorf("telegram bot token is not configured")
	}

	status, resp, err := c.post(ctx, "getMe", []byte("{}"))
	if err != nil {
		return fmt.Errorf("failed to reach telegram: %w", err)
	}
	if status != http.StatusOK {
		return &APIError{StatusCode: status, Description: resp.Description}
	}
	return nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// NormalizeChatID prefixes numeric group ids with the supergroup marker -100.
// Channel usernames (@name) are returned unchanged.
func NormalizeChatID(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" || strings.HasPrefix(chatID, "@") || strings.HasPrefix(chatID, "-100") {
		return chatID
	}
	return "-100" + strings.TrimLeft(chatID, "-")
}

// Send implements notification.Channel
func (c *Client) Send(ctx context.Context, msg notification.Message, dest entities.Destination) error {
	req := sendMessageRequest{
		ChatID:          NormalizeChatID(dest.ChannelID),
		Text:            msg.Text,
		MessageThreadID: dest.TopicID,
	}
	switch msg.Variant {
	case notification.VariantRich:
		req.ParseMode = "Markdown"
		req.DisableWebPagePreview = true
	case notification.VariantPlain:
		req.DisableWebPagePreview = true
	}

	return c.sendMessage(ctx, req)
}

// sendMessage posts the payload. Rate limits wait for retry_after outside the
// retry budget; server errors and network failures back off exponentially.
func (c *Client) sendMessage(ctx context.Context, payload sendMessageRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	var lastErr error
	rateLimitWaits := 0

	for attempt := 0; attempt <= c.config.MaxRetries; {
		status, resp, err := c.post(ctx, "sendMessage", body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err

		case status == http.StatusOK && resp.OK:
			return nil

		case status == http.StatusBadRequest:
			return fmt.Errorf("%w: %s", notification.ErrFormattingRejected, resp.Description)

		case status == http.StatusTooManyRequests:
			rateLimitWaits++
			if rateLimitWaits > maxRateLimitWaits {
				return &APIError{StatusCode: status, Description: resp.Description}
			}
			delay := c.config.RetryDelay
			if resp.Parameters != nil && resp.Parameters.RetryAfter > 0 {
				delay = time.Duration(resp.Parameters.RetryAfter) * time.Second
			}
			c.logger.Warn("Rate limited by Telegram, waiting",
				zap.String("chat_id", payload.ChatID),
				zap.Duration("retry_after", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return err
			}
			continue

		case status >= http.StatusInternalServerError:
			lastErr = &APIError{StatusCode: status, Description: resp.Description}

		default:
			return &APIError{StatusCode: status, Description: resp.Description}
		}

		c.logger.Warn("Telegram request failed, retrying",
			zap.String("chat_id", payload.ChatID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)

		if attempt < c.config.MaxRetries {
			if err := c.sleep(ctx, c.config.RetryDelay*time.Duration(1<<uint(attempt))); err != nil {
				return err
			}
		}
		attempt++
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) post(ctx context.Context, method string, body []byte) (int, apiResponse, error) {
	var resp apiResponse

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.config.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, resp, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, resp, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, resp, fmt.Errorf("failed to read response body: %w", err)
	}

	// Error responses may not be JSON when they come from a proxy
	if err := json.Unmarshal(data, &resp); err != nil {
		resp.Description = string(data)
	}
	if httpResp.StatusCode == http.StatusOK && !resp.OK {
		return http.StatusInternalServerError, resp, nil
	}

	return httpResp.StatusCode, resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
