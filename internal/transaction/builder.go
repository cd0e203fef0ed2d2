// Package transaction builds the durable record of every attempt. Approved
// and declined attempts go through the same builder so both carry the same
// card, processor and merchant fields.
package transaction

import (
	"time"

	"card-payments/internal/amount"
	"card-payments/internal/apperr"
	"card-payments/internal/model"
	"github.com/google/uuid"
)

// Attempt is everything known about one processor call.
type Attempt struct {
	Type             model.TransactionType
	Token            model.Token
	Merchant         model.Merchant
	Processor        *model.Processor
	Amount           model.Amount
	Converted        *model.ConvertedAmount
	Deferred         *model.Deferred
	Plcc             *model.PlccInfo
	RuleResponse     map[string]any
	IsFailoverRetry  bool
	Contact          *model.ContactDetails
	SubscriptionID   string
	Metadata         map[string]any
	PreauthReference string
	SaleTicketNumber string
}

type Builder struct {
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// WithClock replaces the creation clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	return &Builder{now: now}
}

func (b *Builder) Approved(a Attempt, resp model.ProviderResponse) model.Transaction {
	tx := b.base(a)
	tx.TransactionStatus = model.TransactionStatusApproval
	applyProviderResponse(&tx, resp)
	if resp.ApprovedTransactionAmount == 0 {
		tx.ApprovedTransactionAmount = tx.RequestAmount
	}
	return tx
}

// Declined builds the record of a failed attempt. Provider errors carry the
// processor's own identifiers in their metadata; validation errors do not.
func (b *Builder) Declined(a Attempt, e *apperr.Error) model.Transaction {
	tx := b.base(a)
	tx.TransactionStatus = model.TransactionStatusDeclined
	tx.ApprovedTransactionAmount = 0
	tx.ResponseCode = e.Code
	tx.ResponseText = e.Message

	if e.Family == apperr.FamilyProvider {
		tx.TicketNumber = stringOf(e.Metadata, "ticketNumber")
		tx.ApprovalCode = stringOf(e.Metadata, "approvalCode")
		tx.RecapNumber = stringOf(e.Metadata, "recap")
		if id := stringOf(e.Metadata, "transactionId"); id != "" {
			tx.TransactionID = id
		}
		if text := stringOf(e.Metadata, "responseText"); text != "" {
			tx.ResponseText = text
		}
	}
	return tx
}

func (b *Builder) base(a Attempt) model.Transaction {
	tx := model.Transaction{
		TransactionID:               uuid.NewString(),
		TransactionReference:        a.Token.TransactionReference,
		TransactionType:             a.Type,
		Created:                     b.now().UnixMilli(),
		MerchantID:                  a.Merchant.PublicID,
		MerchantName:                a.Merchant.MerchantName,
		Country:                     a.Merchant.Country,
		CurrencyCode:                a.Amount.Currency,
		IvaValue:                    a.Amount.Iva,
		SubtotalIva:                 a.Amount.SubtotalIva,
		SubtotalIva0:                a.Amount.SubtotalIva0,
		RequestAmount:               amount.FullAmount(a.Amount),
		ConvertedAmount:             a.Converted,
		BinCard:                     a.Token.Bin,
		LastFourDigits:              a.Token.LastFourDigits,
		MaskedCardNumber:            a.Token.MaskedCardNumber,
		CardHolderName:              a.Token.CardHolderName,
		Token:                       a.Token.ID,
		IsFailoverRetry:             a.IsFailoverRetry,
		PreauthTransactionReference: a.PreauthReference,
		SaleTicketNumber:            a.SaleTicketNumber,
		SubscriptionID:              a.SubscriptionID,
		RuleResponse:                a.RuleResponse,
		Metadata:                    a.Metadata,
	}
	if a.Amount.Ice != nil {
		tx.IceValue = *a.Amount.Ice
	}
	if info := a.Token.BinInfo; info != nil {
		tx.CardType = info.Type
		tx.PaymentBrand = info.Brand
		tx.CardCountry = info.Country.Name
		tx.IssuingBank = info.Bank
	}
	if p := a.Processor; p != nil {
		tx.ProcessorID = p.PublicID
		tx.ProcessorName = p.ProcessorName
		tx.ProcessorType = p.ProcessorType
		tx.ProcessorBankName = p.AcquirerBank
		tx.Integration = p.Integration
	}
	if d := a.Deferred; d != nil {
		tx.IsDeferred = true
		tx.NumberOfMonths = d.Months
		tx.CreditType = d.CreditType
	}
	if a.Plcc != nil {
		tx.Plcc = a.Plcc.Flag
	}
	if a.Contact != nil {
		tx.ContactEmail = a.Contact.Email
	}
	return tx
}

func applyProviderResponse(tx *model.Transaction, resp model.ProviderResponse) {
	tx.TicketNumber = resp.TicketNumber
	if resp.TransactionID != "" {
		tx.TransactionID = resp.TransactionID
	}
	tx.ApprovalCode = resp.ApprovalCode
	tx.ResponseCode = resp.ResponseCode
	tx.ResponseText = resp.ResponseText
	tx.ApprovedTransactionAmount = resp.ApprovedTransactionAmount
	tx.RecapNumber = resp.RecapNumber
	if resp.ProcessorName != "" {
		tx.ProcessorName = resp.ProcessorName
	}
}

func stringOf(md map[string]any, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}
