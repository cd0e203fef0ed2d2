package model

type TransactionType string

const (
	TransactionTypeCharge                 TransactionType = "charge"
	TransactionTypeDeferred               TransactionType = "deferred"
	TransactionTypePreauthorization       TransactionType = "preauthorization"
	TransactionTypeReauthorization        TransactionType = "reauthorization"
	TransactionTypeCapture                TransactionType = "capture"
	TransactionTypeVoid                   TransactionType = "void"
	TransactionTypeSubscriptionValidation TransactionType = "subscriptionValidation"
)

const (
	TransactionStatusApproval = "APPROVAL"
	TransactionStatusDeclined = "DECLINED"
)

const (
	OriginSubscription = "subscription"
	OriginCommission   = "commission"

	SubscriptionTriggerOnDemand = "onDemand"

	IntegrationDirect = "direct"
	IntegrationMall   = "mall"

	ProcessorTypeGateway = "gateway"
)

// ExtraTaxes keeps the legacy field names used by merchants in requests.
type ExtraTaxes struct {
	AgenciaDeViaje    *float64 `json:"agenciaDeViaje,omitempty"`
	Iac               *float64 `json:"iac,omitempty"`
	Propina           *float64 `json:"propina,omitempty"`
	TasaAeroportuaria *float64 `json:"tasaAeroportuaria,omitempty"`
	StateTax          *float64 `json:"stateTax,omitempty"`
	MunicipalTax      *float64 `json:"municipalTax,omitempty"`
	ReducedStateTax   *float64 `json:"reducedStateTax,omitempty"`
}

type Amount struct {
	Currency     string      `json:"currency"`
	Iva          float64     `json:"iva"`
	SubtotalIva  float64     `json:"subtotalIva"`
	SubtotalIva0 float64     `json:"subtotalIva0"`
	Ice          *float64    `json:"ice,omitempty"`
	ExtraTaxes   *ExtraTaxes `json:"extraTaxes,omitempty"`
}

type BinCountry struct {
	Name string `json:"name"`
	Code string `json:"alpha2,omitempty"`
}

type BinInfo struct {
	Bank    string     `json:"bank"`
	Brand   string     `json:"brand"`
	Country BinCountry `json:"country"`
	Type    string     `json:"type"`
	Invalid bool       `json:"invalid,omitempty"`
}

type ThreeDS struct {
	ECI        string `json:"eci"`
	CAVV       string `json:"cavv"`
	XID        string `json:"xid"`
	Version    string `json:"specificationVersion,omitempty"`
	AcceptRisk bool   `json:"acceptRisk,omitempty"`
}

type Token struct {
	ID                   string   `json:"id"`
	MaskedCardNumber     string   `json:"maskedCardNumber"`
	LastFourDigits       string   `json:"lastFourDigits"`
	Bin                  string   `json:"bin"`
	BinInfo              *BinInfo `json:"binInfo,omitempty"`
	CardHolderName       string   `json:"cardHolderName"`
	Created              int64    `json:"created"`
	Currency             string   `json:"currency"`
	Amount               float64  `json:"amount"`
	IsDeferred           bool     `json:"isDeferred"`
	ThreeDS              *ThreeDS `json:"3ds,omitempty"`
	VaultToken           string   `json:"vaultToken,omitempty"`
	SessionID            string   `json:"sessionId,omitempty"`
	UserID               string   `json:"userId,omitempty"`
	FailoverToken        string   `json:"failoverToken,omitempty"`
	SecureID             string   `json:"secureId,omitempty"`
	SecureService        string   `json:"secureService,omitempty"`
	TransactionReference string   `json:"transactionReference"`
	MerchantID           string   `json:"merchantId,omitempty"`
	AlreadyUsed          bool     `json:"alreadyUsed,omitempty"`
}

type DeferredOption struct {
	Bank          []string `json:"bank,omitempty"`
	DeferredType  []string `json:"deferredType"`
	Months        []string `json:"months"`
	MonthsOfGrace []string `json:"monthsOfGrace,omitempty"`
}

type Deferred struct {
	CreditType  string `json:"creditType"`
	Months      int    `json:"months"`
	GraceMonths string `json:"graceMonths,omitempty"`
}

type SiftScience struct {
	ProdAccountID string  `json:"ProdAccountId,omitempty"`
	ProdAPIKey    string  `json:"ProdApiKey,omitempty"`
	BaconScore    float64 `json:"BaconScore,omitempty"`
}

type Merchant struct {
	PublicID        string           `json:"public_id"`
	MerchantName    string           `json:"merchant_name"`
	Country         string           `json:"country"`
	SandboxEnable   bool             `json:"sandboxEnable"`
	DeferredOptions []DeferredOption `json:"deferredOptions,omitempty"`
	WhiteList       bool             `json:"whiteList"`
	SiftScience     SiftScience      `json:"sift_science"`
	TaxID           string           `json:"taxId,omitempty"`
	WebhookURL      string           `json:"webhookUrl,omitempty"`
}

// FraudConfigured reports whether the merchant has a scoring account set up.
func (m Merchant) FraudConfigured() bool {
	return m.SiftScience.ProdAccountID != "" && m.SiftScience.ProdAPIKey != ""
}

// Hierarchy links a merchant to its parent configuration.
type Hierarchy struct {
	MerchantID       string           `json:"merchantId"`
	ParentMerchantID string           `json:"parentMerchantId"`
	DeferredOptions  []DeferredOption `json:"deferredOptions,omitempty"`
}

type Processor struct {
	ProcessorName string `json:"processorName"`
	PublicID      string `json:"publicId"`
	PrivateID     string `json:"privateId"`
	ProcessorType string `json:"processorType"`
	AcquirerBank  string `json:"acquirerBank,omitempty"`
	SubMccCode    string `json:"subMccCode,omitempty"`
	CategoryModel string `json:"categoryModel,omitempty"`
	Integration   string `json:"integration,omitempty"`
	TerminalID    string `json:"terminalId,omitempty"`
	UniqueCode    string `json:"uniqueCode,omitempty"`
}

type PlccInfo struct {
	Flag  string `json:"flag"`
	Brand string `json:"brand"`
}

type ConvertedAmount struct {
	Currency    string  `json:"currency"`
	TotalAmount float64 `json:"totalAmount"`
}

// ProviderResponse is what every acquirer returns for an authorization-type call.
type ProviderResponse struct {
	TicketNumber              string  `json:"ticketNumber"`
	TransactionID             string  `json:"transactionId"`
	ApprovalCode              string  `json:"approvalCode"`
	ResponseCode              string  `json:"responseCode"`
	ResponseText              string  `json:"responseText"`
	ApprovedTransactionAmount float64 `json:"approvedTransactionAmount"`
	ProcessorName             string  `json:"processorName,omitempty"`
	RecapNumber               string  `json:"recap,omitempty"`
}

type TokenResponse struct {
	Token         string `json:"token"`
	FailoverToken string `json:"failoverToken,omitempty"`
}

type AccountValidation struct {
	Valid        bool   `json:"valid"`
	ResponseCode string `json:"responseCode"`
	ResponseText string `json:"responseText"`
}

type ContactDetails struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phoneNumber,omitempty"`
	DocType   string `json:"documentType,omitempty"`
	DocNumber string `json:"documentNumber,omitempty"`
}
