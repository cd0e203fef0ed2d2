package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type amount struct {
	Iva          float64 `json:"iva"`
	SubtotalIva  float64 `json:"subtotalIva"`
	SubtotalIva0 float64 `json:"subtotalIva0"`
}

type authorizationRequest struct {
	Amount          *amount `json:"amount"`
	IsFailoverRetry bool    `json:"isFailoverRetry"`
}

type approvalResponse struct {
	TicketNumber              string  `json:"ticketNumber"`
	TransactionID             string  `json:"transactionId"`
	ApprovalCode              string  `json:"approvalCode"`
	ResponseCode              string  `json:"responseCode"`
	ResponseText              string  `json:"responseText"`
	ApprovedTransactionAmount float64 `json:"approvedTransactionAmount"`
	ProcessorName             string  `json:"processorName"`
}

type errorResponse struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

const (
	declineRate   = 0.5
	contentType   = "application/json"
	processorName = "Mock Processor"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /always-approve/{operation}", alwaysApproveHandler)
	mux.HandleFunc("POST /approve-delayed/{operation}", approveDelayedHandler)
	mux.HandleFunc("POST /always-decline/{operation}", alwaysDeclineHandler)
	mux.HandleFunc("POST /random-decline/{operation}", randomDeclineHandler)
	mux.HandleFunc("POST /unreachable/{operation}", unreachableHandler)

	log.Fatal(http.ListenAndServe(":8085", loggingMiddleware(countMiddleware(mux))))
}

func alwaysApproveHandler(w http.ResponseWriter, r *http.Request) {
	approve(w, decode(r))
}

func approveDelayedHandler(w http.ResponseWriter, r *http.Request) {
	delay := time.Duration(3+rand.IntN(6)) * time.Second
	time.Sleep(delay)
	approve(w, decode(r))
}

func alwaysDeclineHandler(w http.ResponseWriter, _ *http.Request) {
	decline(w)
}

func randomDeclineHandler(w http.ResponseWriter, r *http.Request) {
	if rand.Float64() < declineRate {
		decline(w)
		return
	}
	approve(w, decode(r))
}

// unreachableHandler fails every first attempt and approves failover retries.
func unreachableHandler(w http.ResponseWriter, r *http.Request) {
	req := decode(r)
	if req.IsFailoverRetry {
		approve(w, req)
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{
		Code:     "228",
		Message:  "Processor unreachable.",
		Metadata: map[string]any{"processorName": processorName},
	})
}

func decode(r *http.Request) authorizationRequest {
	var req authorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding request: %v", err)
	}
	return req
}

func approve(w http.ResponseWriter, req authorizationRequest) {
	var total float64
	if req.Amount != nil {
		total = req.Amount.Iva + req.Amount.SubtotalIva + req.Amount.SubtotalIva0
	}
	writeJSON(w, http.StatusOK, approvalResponse{
		TicketNumber:              fmt.Sprintf("%018d", rand.Int64N(1e18)),
		TransactionID:             uuid.NewString(),
		ApprovalCode:              fmt.Sprintf("%06d", rand.IntN(1_000_000)),
		ResponseCode:              "000",
		ResponseText:              "Approved transaction",
		ApprovedTransactionAmount: total,
		ProcessorName:             processorName,
	})
}

func decline(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Code:    "005",
		Message: "Declined by issuer.",
		Metadata: map[string]any{
			"ticketNumber":  fmt.Sprintf("%018d", rand.Int64N(1e18)),
			"processorName": processorName,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
