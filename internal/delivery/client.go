/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package delivery talks to the external delivery engine that renders and
// posts content to messaging channels. botdeck decides when and what; the
// engine does the sending.
package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/telemetry"
	"github.com/botdeckhq/botdeck/internal/version"
)

// ErrEngineUnavailable marks transport-level failures reaching the engine.
var ErrEngineUnavailable = errors.New("delivery engine unavailable")

// Request is the dispatch payload sent to the delivery engine.
type Request struct {
	RuleID         string             `json:"rule_id"`
	ChannelID      string             `json:"channel_id"`
	TelegramChatID string             `json:"telegram_chat_id"`
	Language       string             `json:"language"`
	ContentType    models.ContentType `json:"content_type"`
	ScheduledFor   time.Time          `json:"scheduled_for"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

// Response is the engine's reply envelope.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher is the interface the automation service dispatches through.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// Client is an HTTP Dispatcher for the external delivery engine.
type Client struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   zerolog.Logger
}

// NewClient creates a delivery engine client. Requests are traced through
// the otelhttp transport and signed with HMAC-SHA256 when a secret is set.
func NewClient(endpoint, secret string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		secret:   secret,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "delivery").Logger(),
	}
}

// Dispatch sends one content request to the engine. Failures are returned
// to the caller for logging; there is no internal retry.
func (c *Client) Dispatch(ctx context.Context, req Request) error {
	if c.endpoint == "" {
		return fmt.Errorf("%w: no endpoint configured", ErrEngineUnavailable)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create dispatch request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "Botdeck/"+version.Version)
	httpReq.Header.Set("X-Botdeck-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if c.secret != "" {
		httpReq.Header.Set("X-Botdeck-Signature", signPayload(body, c.secret))
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	telemetry.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery engine returned status %d", resp.StatusCode)
	}

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	if !envelope.Success {
		if envelope.Error == "" {
			envelope.Error = "unspecified engine error"
		}
		return fmt.Errorf("delivery engine rejected request: %s", envelope.Error)
	}

	c.logger.Debug().
		Str("rule_id", req.RuleID).
		Str("channel_id", req.ChannelID).
		Str("content_type", string(req.ContentType)).
		Msg("dispatched content request")

	return nil
}

// signPayload creates an HMAC-SHA256 signature.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
