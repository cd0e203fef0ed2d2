package callback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"card-payments/internal/config"
)

type Sender struct {
	client *http.Client
	logger *slog.Logger
}

func NewSender(cfg config.CallbackSender, logger *slog.Logger) *Sender {
	return &Sender{
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		logger: logger,
	}
}

func (s *Sender) Send(ctx context.Context, url, payload string) error {
	s.logger.InfoContext(ctx, "Sending callback", "url", url)
	s.logger.DebugContext(ctx, "Request payload", "payload", payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating request", "error", err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error sending callback", "error", err)
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error reading response body", "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Callback response", "status", resp.Status, "body", string(respBody))

	if resp.StatusCode >= 400 {
		s.logger.WarnContext(ctx, "Received error response", "status", resp.Status)
		return fmt.Errorf("error response: %s", resp.Status)
	}

	s.logger.InfoContext(ctx, "Successfully sent callback", "url", url)
	return nil
}
