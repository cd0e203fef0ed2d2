package payload

import "card-payments/internal/model"

// Webhook is the body merchants receive for every recorded transaction.
type Webhook struct {
	TicketNumber         string                `json:"ticketNumber"`
	TransactionReference string                `json:"transactionReference,omitempty"`
	TransactionType      model.TransactionType `json:"transactionType"`
	Status               string                `json:"status"`
	Amount               float64               `json:"amount"`
	Currency             string                `json:"currency"`
	ApprovalCode         string                `json:"approvalCode,omitempty"`
	ResponseCode         string                `json:"responseCode"`
	ResponseText         string                `json:"responseText"`
	Created              int64                 `json:"created"`
}

// NewWebhook builds the webhook body. hideReference drops the transaction
// reference for merchants on the deny list.
func NewWebhook(tx model.Transaction, hideReference bool) Webhook {
	w := Webhook{
		TicketNumber:         tx.TicketNumber,
		TransactionReference: tx.TransactionReference,
		TransactionType:      tx.TransactionType,
		Status:               tx.TransactionStatus,
		Amount:               tx.RequestAmount,
		Currency:             tx.CurrencyCode,
		ApprovalCode:         tx.ApprovalCode,
		ResponseCode:         tx.ResponseCode,
		ResponseText:         tx.ResponseText,
		Created:              tx.Created,
	}
	if hideReference {
		w.TransactionReference = ""
	}
	return w
}
