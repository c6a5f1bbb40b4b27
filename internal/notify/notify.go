// Package notify delivers login PINs to users through the notification
// service. Delivery failures must never leak whether an account exists, so
// callers log errors and still return a generic response.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/medusa2112/HealiosHealth-sub005/pkg/httpclient"
)

// Sender delivers one-time login PINs.
type Sender interface {
	SendLoginPin(ctx context.Context, email, code string) error
}

// HTTPSender posts PIN deliveries to the notification service over HTTP,
// behind a circuit breaker so a dead notification service cannot stall
// logins.
type HTTPSender struct {
	client  *httpclient.BreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewHTTPSender creates a sender targeting the notification service at
// baseURL.
func NewHTTPSender(client *httpclient.BreakerClient, baseURL string, logger *slog.Logger) *HTTPSender {
	return &HTTPSender{
		client:  client,
		baseURL: baseURL,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

type pinMessage struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Template string `json:"template"`
}

// SendLoginPin delivers a login PIN by email.
func (s *HTTPSender) SendLoginPin(ctx context.Context, email, code string) error {
	payload, err := json.Marshal(pinMessage{
		Email:    email,
		Code:     code,
		Template: "login_pin",
	})
	if err != nil {
		return fmt.Errorf("marshal pin message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/internal/notifications/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("send login pin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send login pin: notification service returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender logs deliveries instead of sending them. Used in development
// when no notification service is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "notify"))}
}

// SendLoginPin logs the delivery. The code itself is not logged.
func (s *LogSender) SendLoginPin(_ context.Context, email, _ string) error {
	s.logger.Info("login pin issued (delivery disabled)", slog.String("email", email))
	return nil
}
