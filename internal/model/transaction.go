package model

// Transaction is the durable record of one attempt. Field names are the wire
// format shared with storage and queue consumers.
type Transaction struct {
	TransactionID               string           `json:"transaction_id"`
	TicketNumber                string           `json:"ticket_number"`
	TransactionReference        string           `json:"transaction_reference"`
	TransactionType             TransactionType  `json:"transaction_type"`
	TransactionStatus           string           `json:"transaction_status"`
	Created                     int64            `json:"created"`
	MerchantID                  string           `json:"merchant_id"`
	MerchantName                string           `json:"merchant_name"`
	Country                     string           `json:"country"`
	CurrencyCode                string           `json:"currency_code"`
	IvaValue                    float64          `json:"iva_value"`
	SubtotalIva                 float64          `json:"subtotal_iva"`
	SubtotalIva0                float64          `json:"subtotal_iva0"`
	IceValue                    float64          `json:"ice_value,omitempty"`
	RequestAmount               float64          `json:"request_amount"`
	ApprovedTransactionAmount   float64          `json:"approved_transaction_amount"`
	PendingAmount               *float64         `json:"pending_amount,omitempty"`
	ConvertedAmount             *ConvertedAmount `json:"converted_amount,omitempty"`
	BinCard                     string           `json:"bin_card"`
	LastFourDigits              string           `json:"last_four_digits"`
	MaskedCardNumber            string           `json:"masked_credit_card"`
	CardHolderName              string           `json:"card_holder_name"`
	CardType                    string           `json:"card_type"`
	PaymentBrand                string           `json:"payment_brand"`
	CardCountry                 string           `json:"card_country"`
	IssuingBank                 string           `json:"issuing_bank"`
	ProcessorID                 string           `json:"processor_id"`
	ProcessorName               string           `json:"processor_name"`
	ProcessorType               string           `json:"processor_type"`
	ProcessorBankName           string           `json:"processor_bank_name"`
	Integration                 string           `json:"integration,omitempty"`
	ApprovalCode                string           `json:"approval_code"`
	ResponseCode                string           `json:"response_code"`
	ResponseText                string           `json:"response_text"`
	RecapNumber                 string           `json:"recap,omitempty"`
	Token                       string           `json:"token"`
	IsDeferred                  bool             `json:"is_deferred"`
	NumberOfMonths              int              `json:"number_of_months,omitempty"`
	CreditType                  string           `json:"credit_type,omitempty"`
	IsFailoverRetry             bool             `json:"is_failover_retry,omitempty"`
	PreauthTransactionReference string           `json:"preauth_transaction_reference,omitempty"`
	SaleTicketNumber            string           `json:"sale_ticket_number,omitempty"`
	CapturedReference           string           `json:"captured_reference,omitempty"`
	FullRefund                  bool             `json:"full_refund,omitempty"`
	Plcc                        string           `json:"plcc,omitempty"`
	SubscriptionID              string           `json:"subscription_id,omitempty"`
	ContactEmail                string           `json:"contact_email,omitempty"`
	RuleResponse                map[string]any   `json:"rules,omitempty"`
	Metadata                    map[string]any   `json:"metadata,omitempty"`
}

func (t Transaction) Approved() bool {
	return t.TransactionStatus == TransactionStatusApproval
}

// OutstandingAmount is the refundable balance: the pending amount after
// partial voids, or the approved amount when none happened yet.
func (t Transaction) OutstandingAmount() float64 {
	if t.PendingAmount != nil {
		return *t.PendingAmount
	}
	return t.ApprovedTransactionAmount
}
