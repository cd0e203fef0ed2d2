// Package trxrule asks the transaction rule engine which processor handles
// an attempt.
package trxrule

import (
	"context"
	"encoding/json"
	"strconv"

	"card-payments/internal/amount"
	"card-payments/internal/invoker"
	"card-payments/internal/model"
	"github.com/pkg/errors"
)

const plccFlagged = "1"

type BinLookup interface {
	Lookup(ctx context.Context, bin string, isPrivateCard bool, country string) *model.BinInfo
}

type Request struct {
	Token               model.Token
	Merchant            model.Merchant
	Hierarchy           *model.Hierarchy
	Amount              model.Amount
	TransactionType     model.TransactionType
	Deferred            *model.Deferred
	Contact             *model.ContactDetails
	IP                  string
	OrderDetails        map[string]any
	ProductDetails      map[string]any
	Metadata            map[string]any
	Origin              string
	SubscriptionTrigger string
	Tokenless           bool
}

// Result is what an attempt needs from the rule engine.
type Result struct {
	Processor model.Processor
	Plcc      *model.PlccInfo
	Failover  *model.Processor
	Raw       map[string]any
}

type detailAmount struct {
	Iva          float64 `json:"iva"`
	SubtotalIva  float64 `json:"subtotalIva"`
	SubtotalIva0 float64 `json:"subtotalIva0"`
	TotalAmount  float64 `json:"totalAmount"`
}

type otp struct {
	SecureService string `json:"secureService,omitempty"`
	SecureID      string `json:"secureId,omitempty"`
}

type threeDSHint struct {
	ECI     string `json:"eci"`
	Version string `json:"version,omitempty"`
}

type detail struct {
	TransactionType  model.TransactionType `json:"transactionType"`
	TransactionRef   string                `json:"transactionReference"`
	Bin              string                `json:"bin"`
	LastFourDigits   string                `json:"lastFourDigits"`
	Brand            string                `json:"brand,omitempty"`
	Bank             string                `json:"bank,omitempty"`
	CardType         string                `json:"cardType,omitempty"`
	CardCountry      string                `json:"cardCountry,omitempty"`
	Amount           detailAmount          `json:"amount"`
	Currency         string                `json:"currency"`
	IsDeferred       string                `json:"isDeferred"`
	Deferred         *model.Deferred       `json:"deferred,omitempty"`
	Contact          *model.ContactDetails `json:"contactDetails,omitempty"`
	MerchantID       string                `json:"merchantId"`
	MerchantName     string                `json:"merchantName"`
	MerchantCountry  string                `json:"country"`
	ParentMerchantID string                `json:"parentMerchantId,omitempty"`
	IP               string                `json:"ip,omitempty"`
	OrderDetails     map[string]any        `json:"orderDetails,omitempty"`
	ProductDetails   map[string]any        `json:"productDetails,omitempty"`
	Metadata         map[string]any        `json:"metadata,omitempty"`
	OTP              *otp                  `json:"otp,omitempty"`
	ThreeDS          *threeDSHint          `json:"3ds,omitempty"`
}

type payload struct {
	Detail detail `json:"detail"`
}

type processorFields struct {
	Processor     string `json:"processor"`
	PublicID      string `json:"publicId"`
	PrivateID     string `json:"privateId"`
	ProcessorType string `json:"processorType"`
	AcquirerBank  string `json:"acquirerBank"`
	SubMccCode    string `json:"subMccCode"`
	CategoryModel string `json:"categoryModel"`
	Integration   string `json:"integration"`
	TerminalID    string `json:"terminalId"`
	UniqueCode    string `json:"uniqueCode"`
}

type response struct {
	processorFields
	Plcc     string           `json:"plcc"`
	Failover *processorFields `json:"failOverProcessor"`
}

type Invoker struct {
	invoker  invoker.Invoker
	function string
	bins     BinLookup
}

func NewInvoker(inv invoker.Invoker, function string, bins BinLookup) *Invoker {
	return &Invoker{invoker: inv, function: function, bins: bins}
}

func (i *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	raw, err := invoker.Invoke[json.RawMessage](ctx, i.invoker, i.function, BuildPayload(req))
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding rule response")
	}
	var echo map[string]any
	if err := json.Unmarshal(raw, &echo); err != nil {
		return nil, errors.Wrap(err, "decoding rule response")
	}

	result := &Result{Processor: resp.toProcessor(), Raw: echo}
	if resp.Failover != nil && resp.Failover.Processor != "" {
		failover := resp.Failover.toProcessor()
		result.Failover = &failover
	}

	if resp.Plcc == plccFlagged && !req.Tokenless {
		result.Plcc = &model.PlccInfo{Flag: plccFlagged}
		if info := i.bins.Lookup(ctx, req.Token.Bin, true, req.Merchant.Country); info != nil {
			result.Plcc.Brand = info.Brand
		}
	}
	return result, nil
}

func (p processorFields) toProcessor() model.Processor {
	processorType := p.ProcessorType
	if processorType == "" {
		processorType = model.ProcessorTypeGateway
	}
	return model.Processor{
		ProcessorName: p.Processor,
		PublicID:      p.PublicID,
		PrivateID:     p.PrivateID,
		ProcessorType: processorType,
		AcquirerBank:  p.AcquirerBank,
		SubMccCode:    p.SubMccCode,
		CategoryModel: p.CategoryModel,
		Integration:   p.Integration,
		TerminalID:    p.TerminalID,
		UniqueCode:    p.UniqueCode,
	}
}

// BuildPayload shapes the rule engine request. Subscriptions are never
// deferred unless charged on demand, and commissions carry no OTP data.
func BuildPayload(req Request) any {
	d := detail{
		TransactionType: req.TransactionType,
		TransactionRef:  req.Token.TransactionReference,
		Bin:             req.Token.Bin,
		LastFourDigits:  req.Token.LastFourDigits,
		Amount: detailAmount{
			Iva:          req.Amount.Iva,
			SubtotalIva:  req.Amount.SubtotalIva,
			SubtotalIva0: req.Amount.SubtotalIva0,
			TotalAmount:  amount.FullAmount(req.Amount),
		},
		Currency:        req.Amount.Currency,
		IsDeferred:      strconv.FormatBool(req.Deferred != nil || req.Token.IsDeferred),
		Deferred:        req.Deferred,
		Contact:         req.Contact,
		MerchantID:      req.Merchant.PublicID,
		MerchantName:    req.Merchant.MerchantName,
		MerchantCountry: req.Merchant.Country,
		IP:              req.IP,
		OrderDetails:    req.OrderDetails,
		ProductDetails:  req.ProductDetails,
		Metadata:        req.Metadata,
	}

	if info := req.Token.BinInfo; info != nil {
		d.Brand = info.Brand
		d.Bank = info.Bank
		d.CardType = info.Type
		d.CardCountry = info.Country.Name
	}
	if req.Hierarchy != nil {
		d.ParentMerchantID = req.Hierarchy.ParentMerchantID
	}
	if tds := req.Token.ThreeDS; tds != nil {
		d.ThreeDS = &threeDSHint{ECI: tds.ECI, Version: tds.Version}
	}
	if req.Token.SecureService != "" || req.Token.SecureID != "" {
		d.OTP = &otp{SecureService: req.Token.SecureService, SecureID: req.Token.SecureID}
	}

	switch req.Origin {
	case model.OriginSubscription:
		if req.SubscriptionTrigger != model.SubscriptionTriggerOnDemand {
			d.IsDeferred = "false"
		}
	case model.OriginCommission:
		d.OTP = nil
	}

	return payload{Detail: d}
}
