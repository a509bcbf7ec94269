package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"
)

// WebhookConfig configures outbound event delivery
type WebhookConfig struct {
	URL               string
	Secret            string
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration
}

// DefaultWebhookConfig returns the default delivery configuration
func DefaultWebhookConfig(url, secret string) WebhookConfig {
	return WebhookConfig{
		URL:               url,
		Secret:            secret,
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           10 * time.Second,
	}
}

// WebhookSink delivers events to an HTTP endpoint with exponential backoff.
// Payloads are signed with HMAC-SHA256 when a secret is configured.
type WebhookSink struct {
	config WebhookConfig
	client *http.Client
}

// NewWebhookSink creates an HTTP delivery sink
func NewWebhookSink(config WebhookConfig) *WebhookSink {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = 2.0
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookSink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Publish posts the event, retrying transient failures with backoff
func (s *WebhookSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay(attempt - 1)):
			}
		}

		lastErr = s.deliver(ctx, event, payload)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to deliver event %s after %d attempts: %w", event.ID, s.config.MaxAttempts, lastErr)
}

func (s *WebhookSink) deliver(ctx context.Context, event Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Meridian-Event", event.Type)
	req.Header.Set("X-Meridian-Event-ID", event.ID)
	req.Header.Set("X-Meridian-Delivery", time.Now().UTC().Format(time.RFC3339))
	if s.config.Secret != "" {
		req.Header.Set("X-Meridian-Signature", generateSignature(payload, s.config.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
}

// retryDelay is exponential: initialDelay * multiplier^(attempts-1), capped
func (s *WebhookSink) retryDelay(attempts int) time.Duration {
	delay := float64(s.config.InitialDelay) * math.Pow(s.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(s.config.MaxDelay) {
		return s.config.MaxDelay
	}
	return time.Duration(delay)
}

func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received payload against its signature header.
// Exported for consumers of the webhook feed.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := generateSignature(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
