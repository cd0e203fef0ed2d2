// Package invoker calls named remote functions that answer with a
// {"body": ...} envelope.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"card-payments/internal/apperr"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

type Invoker interface {
	// Invoke sends payload to function and returns the raw envelope body.
	Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error)
}

// Invoke calls function through inv and decodes the envelope body into T.
func Invoke[T any](ctx context.Context, inv Invoker, function string, payload any) (T, error) {
	var out T
	body, err := inv.Invoke(ctx, function, payload)
	if err != nil {
		return out, err
	}
	if len(body) == 0 || string(body) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, errors.Wrapf(err, "decoding %s response", function)
	}
	return out, nil
}

type envelope struct {
	Body json.RawMessage `json:"body"`
}

type HTTPInvoker struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewHTTPInvoker(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, function string, payload any) (json.RawMessage, error) {
	startTime := time.Now()
	defer func() {
		metrics.GetOrCreateHistogram(fmt.Sprintf(`invoker_duration_milliseconds{function=%q}`, function)).
			Update(float64(time.Since(startTime).Milliseconds()))
	}()

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encoding payload")
	}

	endpoint, err := url.JoinPath(i.baseURL, "functions", function)
	if err != nil {
		return nil, errors.Wrap(err, "building function url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")

	i.logger.DebugContext(ctx, "Invoking function", "function", function)
	resp, err := i.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			i.logger.WarnContext(ctx, "Function timed out", "function", function)
			return nil, apperr.ErrExternalTimeout.Wrap(err)
		}
		return nil, errors.Wrapf(err, "invoking %s", function)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if ctx.Err() != nil {
		return nil, apperr.ErrExternalTimeout.Wrap(ctx.Err())
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	if resp.StatusCode >= 400 {
		i.logger.ErrorContext(ctx, "Function returned error", "function", function, "status", resp.Status, "body", string(respBody))
		return nil, errors.Errorf("function %s answered %s", function, resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, errors.Wrapf(err, "decoding %s envelope", function)
	}
	return env.Body, nil
}
