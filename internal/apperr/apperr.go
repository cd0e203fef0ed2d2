// Package apperr holds the closed set of business errors the service returns.
//
// Every error that leaves an orchestrator is an *Error carrying a stable code,
// a message and a metadata bag. Family decides how it is persisted and which
// HTTP status the glue layer answers with.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
)

type Family int

const (
	FamilyInternal Family = iota
	FamilyValidation
	FamilyFraud
	FamilyProvider
	FamilyInfrastructure
)

func (f Family) String() string {
	switch f {
	case FamilyValidation:
		return "validation"
	case FamilyFraud:
		return "fraud"
	case FamilyProvider:
		return "provider"
	case FamilyInfrastructure:
		return "infrastructure"
	default:
		return "internal"
	}
}

// ProcessorUnreachableCode is the provider code that makes a charge eligible
// for the failover processor.
const ProcessorUnreachableCode = "228"

type Error struct {
	Code     string
	Message  string
	Family   Family
	Metadata map[string]any
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so a copy carrying metadata still equals its catalog entry.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Family == e.Family
}

// WithMetadata returns a copy of e whose metadata is md merged over e's.
func (e *Error) WithMetadata(md map[string]any) *Error {
	c := *e
	c.Metadata = make(map[string]any, len(e.Metadata)+len(md))
	maps.Copy(c.Metadata, e.Metadata)
	maps.Copy(c.Metadata, md)
	return &c
}

// Wrap returns a copy of e recording cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

// IsFailoverEligible reports whether e is the processor-unreachable provider error.
func (e *Error) IsFailoverEligible() bool {
	return e.Family == FamilyProvider && e.Code == ProcessorUnreachableCode
}

func validation(code, msg string) *Error {
	return &Error{Code: code, Message: msg, Family: FamilyValidation}
}

var (
	ErrInvalidBody           = validation("K001", "Invalid request body.")
	ErrMerchantNotFound      = validation("K004", "Invalid merchant id.")
	ErrTokenExpired          = validation("K008", "Token expired or invalid.")
	ErrCaptureAmount         = validation("K012", "Capture amount exceeds the authorized amount.")
	ErrDeferredOptions       = validation("K013", "Deferred options are not valid for this merchant.")
	ErrDeferredRepeated      = validation("K014", "Deferred selection must differ from the previous attempt.")
	ErrThresholdAmount       = validation("K015", "Amount differs from the tokenized amount.")
	ErrCurrencyMismatch      = validation("K016", "Currency does not match the original transaction.")
	ErrBadBin                = validation("K017", "Card bin is not allowed.")
	ErrTransactionNotFound   = validation("K018", "Transaction not found.")
	ErrAlreadyCaptured       = validation("K019", "Preauthorization already captured.")
	ErrVoidNotAllowed        = validation("K020", "Transaction cannot be voided.")
	ErrVoidTimeLimit         = validation("K022", "Void time limit exceeded.")
	ErrRefundExceeded        = validation("K023", "Refund amount exceeds the pending amount.")
	ErrInvalidRefundAmount   = validation("K024", "Refund amount must be greater than zero.")
	ErrPartialVoidNotAllowed = validation("K025", "Partial void is not allowed for this processor.")
	ErrTokenAlreadyUsed      = validation("K026", "Token already used.")
	ErrThreeDSInvalid        = validation("K027", "3DS authentication data is invalid.")
	ErrProcessorNotFound     = validation("K029", "Processor not available for this merchant.")

	ErrFraudRejected = &Error{Code: "K021", Message: "Transaction rejected by fraud scoring.", Family: FamilyFraud}

	ErrExternalTimeout = &Error{Code: "K028", Message: "External service timed out.", Family: FamilyInfrastructure}
	ErrInternal        = &Error{Code: "K030", Message: "Internal error.", Family: FamilyInternal}
)

// NewProviderError builds a provider-originated error keeping the processor's
// own response code.
func NewProviderError(code, message string, metadata map[string]any) *Error {
	return &Error{Code: code, Message: message, Family: FamilyProvider, Metadata: metadata}
}

func ProcessorUnreachable(metadata map[string]any) *Error {
	return NewProviderError(ProcessorUnreachableCode, "Processor unreachable.", metadata)
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// From coerces any error into the catalog: deadlines become ErrExternalTimeout,
// unknown errors ErrInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrExternalTimeout.Wrap(err)
	}
	return ErrInternal.Wrap(err)
}

func Kind(err error) string {
	if err == nil {
		return ""
	}
	return From(err).Family.String()
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	e := From(err)
	switch e.Family {
	case FamilyValidation, FamilyFraud, FamilyProvider:
		if errors.Is(e, ErrMerchantNotFound) || errors.Is(e, ErrTransactionNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case FamilyInfrastructure:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
