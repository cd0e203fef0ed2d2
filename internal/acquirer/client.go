// Package acquirer reaches a remote acquirer over its JSON HTTP contract.
package acquirer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"card-payments/internal/apperr"
	"card-payments/internal/model"
	"card-payments/internal/provider"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

type errorBody struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

type Client struct {
	variant provider.Variant
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(variant provider.Variant, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		variant: variant,
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger.With("acquirer", string(variant)),
	}
}

var _ provider.Service = (*Client)(nil)

func (c *Client) Tokens(ctx context.Context, req provider.TokensRequest) (*model.TokenResponse, error) {
	var out model.TokenResponse
	if err := c.post(ctx, "/tokens", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Charge(ctx context.Context, in provider.ChargeInput) (*model.ProviderResponse, error) {
	return c.authorize(ctx, "/charge", in)
}

func (c *Client) PreAuthorization(ctx context.Context, in provider.ChargeInput) (*model.ProviderResponse, error) {
	return c.authorize(ctx, "/preAuthorization", in)
}

func (c *Client) Capture(ctx context.Context, in provider.CaptureInput) (*model.ProviderResponse, error) {
	var out model.ProviderResponse
	if err := c.post(ctx, "/capture", in, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReAuthorization(ctx context.Context, in provider.ReauthInput) (*model.ProviderResponse, error) {
	var out model.ProviderResponse
	if err := c.post(ctx, "/reAuthorization", in, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ValidateAccount(ctx context.Context, req provider.AccountValidationRequest) (*model.AccountValidation, error) {
	var out model.AccountValidation
	if err := c.post(ctx, "/validateAccount", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) authorize(ctx context.Context, path string, in provider.ChargeInput) (*model.ProviderResponse, error) {
	var out model.ProviderResponse
	if err := c.post(ctx, path, in, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// post sends in and decodes the answer into out. For authorizations a
// timeout or an unreachable acquirer is the processor-unreachable error.
func (c *Client) post(ctx context.Context, path string, in, out any, authorization bool) error {
	startTime := time.Now()
	defer func() {
		metrics.GetOrCreateHistogram(fmt.Sprintf(`acquirer_duration_milliseconds{variant=%q,operation=%q}`, c.variant, path)).
			Update(float64(time.Since(startTime).Milliseconds()))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encoding acquirer request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "creating acquirer request")
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.InfoContext(ctx, "Sending acquirer request", "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Error calling acquirer", "path", path, "error", err)
		return c.unreachable(ctx, err, authorization)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if ctx.Err() != nil {
		return c.unreachable(ctx, ctx.Err(), authorization)
	}
	if err != nil {
		return errors.Wrap(err, "reading acquirer response")
	}

	c.logger.InfoContext(ctx, "Acquirer answered", "path", path, "status", resp.Status)

	if resp.StatusCode >= 400 {
		var body errorBody
		if err := json.Unmarshal(respBody, &body); err != nil || body.Code == "" {
			return errors.Errorf("acquirer answered %s", resp.Status)
		}
		return apperr.NewProviderError(body.Code, body.Message, body.Metadata)
	}

	return errors.Wrap(json.Unmarshal(respBody, out), "decoding acquirer response")
}

func (c *Client) unreachable(ctx context.Context, err error, authorization bool) error {
	if authorization {
		return apperr.ProcessorUnreachable(map[string]any{"processorName": string(c.variant)}).Wrap(err)
	}
	if ctx.Err() != nil {
		return apperr.ErrExternalTimeout.Wrap(err)
	}
	return errors.Wrap(err, "calling acquirer")
}
