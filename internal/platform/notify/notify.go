// Package notify publishes operational status messages about sync runs
// to a chat webhook. Delivery is best effort and never fails a sync.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Level classifies a message for rendering on the receiving side.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is a single outbound status message.
type Message struct {
	Channel string `json:"channel"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	Level   Level  `json:"level"`
}

// Sink delivers status messages.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
}

// NopSink discards every message. Used when no webhook is configured.
type NopSink struct{}

func (NopSink) Publish(context.Context, Message) error { return nil }

// WebhookSink posts messages as JSON to an incoming-webhook endpoint.
type WebhookSink struct {
	client         *resty.Client
	defaultChannel string
	logger         zerolog.Logger
}

func NewWebhookSink(webhookURL, defaultChannel string, logger zerolog.Logger) *WebhookSink {
	client := resty.New().
		SetBaseURL(webhookURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookSink{
		client:         client,
		defaultChannel: defaultChannel,
		logger:         logger,
	}
}

func (s *WebhookSink) Publish(ctx context.Context, msg Message) error {
	if msg.Channel == "" {
		msg.Channel = s.defaultChannel
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post("")
	if err != nil {
		s.logger.Warn().Err(err).Str("title", msg.Title).Msg("webhook publish failed")
		return fmt.Errorf("publish webhook message: %w", err)
	}
	if resp.IsError() {
		s.logger.Warn().Int("status", resp.StatusCode()).Str("title", msg.Title).Msg("webhook rejected message")
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
