// Package telegram delivers advisor notifications via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hedgewatch/hedgewatch/internal/models"
)

// Client handles Telegram notifications. It satisfies the alert governor's
// Notifier interface: CRITICAL messages take the escalated delivery path with
// a wider retry window.
type Client struct {
	bot             *tgbotapi.BotAPI
	chatID          int64
	maxRetries      int
	criticalRetries int
	retryDelayBase  time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries, criticalRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if criticalRetries < maxRetries {
		criticalRetries = maxRetries
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:             bot,
		chatID:          chatIDInt,
		maxRetries:      maxRetries,
		criticalRetries: criticalRetries,
		retryDelayBase:  retryDelayBase,
	}, nil
}

// Send delivers one governed notification. requireAck widens the retry window
// and forces a notification sound; the acknowledgement itself happens on the
// dashboard, not in Telegram.
func (c *Client) Send(ctx context.Context, severity models.Severity, message string, requireAck bool) error {
	text := fmt.Sprintf("%s *%s*\n%s", severityEmoji(severity), severity, escapeMarkdownV2(message))

	retries := c.maxRetries
	if requireAck {
		retries = c.criticalRetries
	}
	return c.sendMarkdownV2(ctx, text, retries)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Monitoring error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(context.Background(), text, c.maxRetries)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Monitoring recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(context.Background(), text, c.maxRetries)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string, retries int) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < retries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", retries, lastErr)
}

func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "🚨"
	case models.SeverityOpportunity:
		return "💰"
	default:
		return "ℹ️"
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
