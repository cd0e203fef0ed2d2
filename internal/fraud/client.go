package fraud

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
	"card-payments/internal/model"
	"github.com/pkg/errors"
)

// Client reaches the scoring service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{}, timeout: timeout, logger: logger}
}

var _ ScoringService = (*Client)(nil)

type workflowRequest struct {
	AccountID string     `json:"accountId"`
	APIKey    string     `json:"apiKey"`
	UserID    string     `json:"userId"`
	SessionID string     `json:"sessionId"`
	Charge    ChargeBody `json:"charge"`
}

func (c *Client) GetWorkflows(ctx context.Context, merchant model.Merchant, token model.Token, body ChargeBody) (*WorkflowResponse, error) {
	var out WorkflowResponse
	err := c.do(ctx, http.MethodPost, "/workflows", workflowRequest{
		AccountID: merchant.SiftScience.ProdAccountID,
		APIKey:    merchant.SiftScience.ProdAPIKey,
		UserID:    token.UserID,
		SessionID: token.SessionID,
		Charge:    body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetDecision(ctx context.Context, merchant model.Merchant, decisionID string) (*DecisionResponse, error) {
	var out DecisionResponse
	path := fmt.Sprintf("/accounts/%s/decisions/%s", url.PathEscape(merchant.SiftScience.ProdAccountID), url.PathEscape(decisionID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding scoring request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "creating scoring request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperr.ErrExternalTimeout.Wrap(err)
		}
		return errors.Wrap(err, "calling scoring service")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if ctx.Err() != nil {
		return apperr.ErrExternalTimeout.Wrap(ctx.Err())
	}
	if err != nil {
		return errors.Wrap(err, "reading scoring response")
	}

	if resp.StatusCode >= 400 {
		c.logger.ErrorContext(ctx, "Scoring service returned error", "status", resp.Status, "body", string(respBody))
		return errors.Errorf("scoring service answered %s", resp.Status)
	}
	return errors.Wrap(json.Unmarshal(respBody, out), "decoding scoring response")
}
