// Package response shapes recorded transactions into the public response
// versions.
package response

import (
	"encoding/json"
	"strings"

	"card-payments/internal/model"
	"github.com/pkg/errors"
)

type Version int

const (
	VersionNone Version = iota
	VersionV1
	VersionV2
	// VersionRaw echoes the processor answer, for queue driven flows.
	VersionRaw
)

// FullResponse is the request flag that picks a version: true means v1,
// "v2" means v2, false or absent means none.
type FullResponse struct {
	Version Version
}

func (f *FullResponse) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "true", "v1":
		f.Version = VersionV1
	case "v2":
		f.Version = VersionV2
	case "false", "null", "":
		f.Version = VersionNone
	default:
		return errors.Errorf("invalid fullResponse value %s", data)
	}
	return nil
}

func (f FullResponse) MarshalJSON() ([]byte, error) {
	switch f.Version {
	case VersionV1:
		return []byte("true"), nil
	case VersionV2:
		return json.Marshal("v2")
	default:
		return []byte("false"), nil
	}
}

type None struct {
	TicketNumber         string `json:"ticketNumber"`
	TransactionReference string `json:"transactionReference,omitempty"`
}

type V1Details struct {
	ApprovalCode              string                 `json:"approvalCode"`
	ApprovedTransactionAmount float64                `json:"approvedTransactionAmount"`
	BinCard                   string                 `json:"binCard"`
	CardHolderName            string                 `json:"cardHolderName"`
	CardType                  string                 `json:"cardType"`
	ConvertedAmount           *model.ConvertedAmount `json:"convertedAmount,omitempty"`
	Created                   int64                  `json:"created"`
	IsDeferred                string                 `json:"isDeferred"`
	IssuingBank               string                 `json:"issuingBank"`
	Iva                       float64                `json:"ivaValue"`
	LastFourDigits            string                 `json:"lastFourDigits"`
	MerchantID                string                 `json:"merchantId"`
	MerchantName              string                 `json:"merchantName"`
	NumberOfMonths            int                    `json:"numberOfMonths,omitempty"`
	PaymentBrand              string                 `json:"paymentBrand"`
	ProcessorBankName         string                 `json:"processorBankName"`
	ProcessorName             string                 `json:"processorName"`
	Recap                     string                 `json:"recap,omitempty"`
	RequestAmount             float64                `json:"requestAmount"`
	ResponseCode              string                 `json:"responseCode"`
	ResponseText              string                 `json:"responseText"`
	SubtotalIva               float64                `json:"subtotalIva"`
	SubtotalIva0              float64                `json:"subtotalIva0"`
	TransactionID             string                 `json:"transactionId"`
	TransactionStatus         string                 `json:"transactionStatus"`
	TransactionType           model.TransactionType  `json:"transactionType"`
}

type V1 struct {
	TicketNumber         string    `json:"ticketNumber"`
	TransactionReference string    `json:"transactionReference,omitempty"`
	Details              V1Details `json:"details"`
}

type V2Amount struct {
	Currency     string  `json:"currency"`
	Iva          float64 `json:"iva"`
	SubtotalIva  float64 `json:"subtotalIva"`
	SubtotalIva0 float64 `json:"subtotalIva0"`
	Ice          float64 `json:"ice,omitempty"`
}

type V2BinInfo struct {
	Bin         string `json:"bin"`
	Type        string `json:"type"`
	Bank        string `json:"bank"`
	Brand       string `json:"brand"`
	CardCountry string `json:"cardCountry"`
}

type V2Processor struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	BankName string `json:"bankName"`
	Type     string `json:"type"`
}

type V2Details struct {
	TransactionID     string                 `json:"transactionId"`
	TransactionType   model.TransactionType  `json:"transactionType"`
	TransactionStatus string                 `json:"transactionStatus"`
	Created           int64                  `json:"created"`
	ApprovalCode      string                 `json:"approvalCode"`
	ResponseCode      string                 `json:"responseCode"`
	ResponseText      string                 `json:"responseText"`
	Amount            V2Amount               `json:"amount"`
	ApprovedAmount    float64                `json:"approvedTransactionAmount"`
	ConvertedAmount   *model.ConvertedAmount `json:"convertedAmount,omitempty"`
	BinInfo           V2BinInfo              `json:"binInfo"`
	CardHolderName    string                 `json:"cardHolderName"`
	LastFourDigits    string                 `json:"lastFourDigits"`
	Processor         V2Processor            `json:"processor"`
	Merchant          map[string]string      `json:"merchant"`
	Deferred          *model.Deferred        `json:"deferred,omitempty"`
	Rules             map[string]any         `json:"transactionRules,omitempty"`
}

type V2 struct {
	TicketNumber         string    `json:"ticketNumber"`
	TransactionReference string    `json:"transactionReference,omitempty"`
	Details              V2Details `json:"details"`
}

// Build returns the response body for tx. raw is only used by VersionRaw.
// hideReference drops transactionReference for deny-listed merchants.
func Build(v Version, tx model.Transaction, raw *model.ProviderResponse, hideReference bool) any {
	reference := tx.TransactionReference
	if hideReference {
		reference = ""
	}

	switch v {
	case VersionV1:
		return V1{TicketNumber: tx.TicketNumber, TransactionReference: reference, Details: NewV1Details(tx)}
	case VersionV2:
		return V2{TicketNumber: tx.TicketNumber, TransactionReference: reference, Details: newV2Details(tx)}
	case VersionRaw:
		if raw != nil {
			return raw
		}
	}
	return None{TicketNumber: tx.TicketNumber, TransactionReference: reference}
}

func NewV1Details(tx model.Transaction) V1Details {
	isDeferred := "N"
	if tx.IsDeferred {
		isDeferred = "Y"
	}
	return V1Details{
		ApprovalCode:              tx.ApprovalCode,
		ApprovedTransactionAmount: tx.ApprovedTransactionAmount,
		BinCard:                   tx.BinCard,
		CardHolderName:            tx.CardHolderName,
		CardType:                  tx.CardType,
		ConvertedAmount:           tx.ConvertedAmount,
		Created:                   tx.Created,
		IsDeferred:                isDeferred,
		IssuingBank:               tx.IssuingBank,
		Iva:                       tx.IvaValue,
		LastFourDigits:            tx.LastFourDigits,
		MerchantID:                tx.MerchantID,
		MerchantName:              tx.MerchantName,
		NumberOfMonths:            tx.NumberOfMonths,
		PaymentBrand:              tx.PaymentBrand,
		ProcessorBankName:         tx.ProcessorBankName,
		ProcessorName:             tx.ProcessorName,
		Recap:                     tx.RecapNumber,
		RequestAmount:             tx.RequestAmount,
		ResponseCode:              tx.ResponseCode,
		ResponseText:              tx.ResponseText,
		SubtotalIva:               tx.SubtotalIva,
		SubtotalIva0:              tx.SubtotalIva0,
		TransactionID:             tx.TransactionID,
		TransactionStatus:         tx.TransactionStatus,
		TransactionType:           tx.TransactionType,
	}
}

func newV2Details(tx model.Transaction) V2Details {
	d := V2Details{
		TransactionID:     tx.TransactionID,
		TransactionType:   tx.TransactionType,
		TransactionStatus: tx.TransactionStatus,
		Created:           tx.Created,
		ApprovalCode:      tx.ApprovalCode,
		ResponseCode:      tx.ResponseCode,
		ResponseText:      tx.ResponseText,
		Amount: V2Amount{
			Currency:     tx.CurrencyCode,
			Iva:          tx.IvaValue,
			SubtotalIva:  tx.SubtotalIva,
			SubtotalIva0: tx.SubtotalIva0,
			Ice:          tx.IceValue,
		},
		ApprovedAmount:  tx.ApprovedTransactionAmount,
		ConvertedAmount: tx.ConvertedAmount,
		BinInfo: V2BinInfo{
			Bin:         tx.BinCard,
			Type:        tx.CardType,
			Bank:        tx.IssuingBank,
			Brand:       tx.PaymentBrand,
			CardCountry: tx.CardCountry,
		},
		CardHolderName: tx.CardHolderName,
		LastFourDigits: tx.LastFourDigits,
		Processor: V2Processor{
			Name:     tx.ProcessorName,
			ID:       tx.ProcessorID,
			BankName: tx.ProcessorBankName,
			Type:     tx.ProcessorType,
		},
		Merchant: map[string]string{"id": tx.MerchantID, "name": tx.MerchantName, "country": tx.Country},
		Rules:    tx.RuleResponse,
	}
	if tx.IsDeferred {
		d.Deferred = &model.Deferred{CreditType: tx.CreditType, Months: tx.NumberOfMonths}
	}
	return d
}

// Metadata is the save context merged into error metadata for v2 callers.
func Metadata(tx model.Transaction) map[string]any {
	return map[string]any{
		"ticketNumber":         tx.TicketNumber,
		"transactionReference": tx.TransactionReference,
		"transactionId":        tx.TransactionID,
		"approvalCode":         tx.ApprovalCode,
		"binCard":              tx.BinCard,
		"lastFourDigits":       tx.LastFourDigits,
		"cardType":             tx.CardType,
		"processorName":        tx.ProcessorName,
		"processorBankName":    tx.ProcessorBankName,
		"isDeferred":           tx.IsDeferred,
		"merchantName":         tx.MerchantName,
		"responseCode":         tx.ResponseCode,
		"responseText":         tx.ResponseText,
	}
}
