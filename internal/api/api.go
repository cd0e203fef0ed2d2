// Package api exposes the orchestrators over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"card-payments/internal/apperr"
	"card-payments/internal/charge"
	"card-payments/internal/void"
	"github.com/go-chi/chi/v5"
)

const (
	merchantHeader    = "Private-Merchant-Id"
	rawResponseHeader = "Raw-Response"
)

type ChargeService interface {
	Charge(ctx context.Context, req charge.Request) (*charge.Result, error)
	PreAuthorize(ctx context.Context, req charge.Request) (*charge.Result, error)
	Capture(ctx context.Context, req charge.CaptureRequest) (*charge.Result, error)
	Reauthorize(ctx context.Context, req charge.ReauthRequest) (*charge.Result, error)
}

type VoidService interface {
	Void(ctx context.Context, req void.Request) (*void.Result, error)
}

type errorResponse struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// API is the HTTP surface of the service. Every request runs under timeout,
// the budget the charge flow measures its remaining time against.
type API struct {
	charges ChargeService
	voids   VoidService
	timeout time.Duration
	logger  *slog.Logger
}

func NewAPI(charges ChargeService, voids VoidService, timeout time.Duration, logger *slog.Logger) *API {
	return &API{charges: charges, voids: voids, timeout: timeout, logger: logger}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/charges", a.charge)
		r.Post("/charges/{ticketNumber}/void", a.voidCharge)
		r.Post("/preAuthorization", a.preAuthorize)
		r.Post("/capture", a.capture)
		r.Post("/reauthorization", a.reauthorize)
	})
}

func (a *API) charge(w http.ResponseWriter, r *http.Request) {
	a.authorize(w, r, a.charges.Charge)
}

func (a *API) preAuthorize(w http.ResponseWriter, r *http.Request) {
	a.authorize(w, r, a.charges.PreAuthorize)
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request, run func(context.Context, charge.Request) (*charge.Result, error)) {
	var req charge.Request
	if !a.decode(w, r, &req) {
		return
	}
	req.MerchantID = merchantID(r, req.MerchantID)
	req.RawResponse, _ = strconv.ParseBool(r.Header.Get(rawResponseHeader))

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	result, err := run(ctx, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result.Body)
}

func (a *API) capture(w http.ResponseWriter, r *http.Request) {
	var req charge.CaptureRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.MerchantID = merchantID(r, req.MerchantID)

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	result, err := a.charges.Capture(ctx, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result.Body)
}

func (a *API) reauthorize(w http.ResponseWriter, r *http.Request) {
	var req charge.ReauthRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.MerchantID = merchantID(r, req.MerchantID)

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	result, err := a.charges.Reauthorize(ctx, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result.Body)
}

func (a *API) voidCharge(w http.ResponseWriter, r *http.Request) {
	var req void.Request
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	req.TicketNumber = chi.URLParam(r, "ticketNumber")
	req.MerchantID = merchantID(r, req.MerchantID)

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	result, err := a.voids.Void(ctx, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Body)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		a.writeError(w, r, apperr.ErrInvalidBody.Wrap(err))
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Code: e.Code, Message: e.Message, Metadata: e.Metadata})
}

func merchantID(r *http.Request, fallback string) string {
	if id := r.Header.Get(merchantHeader); id != "" {
		return id
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
