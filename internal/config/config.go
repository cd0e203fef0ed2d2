package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	Transactions     string `mapstructure:"transactions"`
	CallbackMessages string `mapstructure:"callback-messages"`
}

type KafkaReader struct {
	GroupID string `mapstructure:"group-id"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Reader KafkaReader `mapstructure:"reader"`
}

type CallbackProcessor struct {
	Parallelism         int `mapstructure:"parallelism"`
	RescheduleDelayMs   int `mapstructure:"reschedule-delay-ms"`
	MaxDeliveryAttempts int `mapstructure:"max-delivery-attempts"`
}

type CallbackProducer struct {
	PollingIntervalMs  int `mapstructure:"polling-interval-ms"`
	FetchSize          int `mapstructure:"fetch-size"`
	RescheduleDelayMs  int `mapstructure:"reschedule-delay-ms"`
	MaxPublishAttempts int `mapstructure:"max-publish-attempts"`
}

type CallbackSender struct {
	TimeoutMs int `mapstructure:"timeout-ms"`
}

type Callback struct {
	Processor CallbackProcessor `mapstructure:"processor"`
	Producer  CallbackProducer  `mapstructure:"producer"`
	Sender    CallbackSender    `mapstructure:"sender"`
}

type Server struct {
	Port             string `mapstructure:"port"`
	RequestTimeoutMs int    `mapstructure:"request-timeout-ms"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

// Storage selects the storage backend. "mem" keeps everything in process and
// is meant for sandbox runs and tests.
type Storage struct {
	Backend string `mapstructure:"backend"`
}

type Functions struct {
	TransactionRule    string `mapstructure:"transaction-rule"`
	CurrencyConversion string `mapstructure:"currency-conversion"`
	BinInfo            string `mapstructure:"bin-info"`
	Void               string `mapstructure:"void"`
	Chargeback         string `mapstructure:"chargeback"`
}

type Acquirer struct {
	Variant string `mapstructure:"variant"`
	URL     string `mapstructure:"url"`
}

type Services struct {
	InvokerURL        string     `mapstructure:"invoker-url"`
	FraudURL          string     `mapstructure:"fraud-url"`
	ExternalTimeoutMs int        `mapstructure:"external-timeout-ms"`
	Functions         Functions  `mapstructure:"functions"`
	Acquirers         []Acquirer `mapstructure:"acquirers"`
}

type ThreeDS struct {
	VisaECI       []string `mapstructure:"visa-eci"`
	MastercardECI []string `mapstructure:"mastercard-eci"`
}

type Charge struct {
	AmountThreshold               float64  `mapstructure:"amount-threshold"`
	TokenExpiryMinutes            int      `mapstructure:"token-expiry-minutes"`
	RemainingTimeThresholdMs      int      `mapstructure:"remaining-time-threshold-ms"`
	CaptureTolerancePercent       float64  `mapstructure:"capture-tolerance-percent"`
	ReauthCaptureTolerancePercent float64  `mapstructure:"reauth-capture-tolerance-percent"`
	ReferenceDenyList             []string `mapstructure:"reference-deny-list"`
	LegacyTokenMerchants          []string `mapstructure:"legacy-token-merchants"`
	FraudMigratedMerchants        []string `mapstructure:"fraud-migrated-merchants"`
	ThreeDS                       ThreeDS  `mapstructure:"three-ds"`
}

// DirectProcessor describes how a processor is rolled out to its direct
// integration variant. Mode is one of dedicated, direct-only, allow-list or
// bin-split.
type DirectProcessor struct {
	Processor      string `mapstructure:"processor"`
	Variant        string `mapstructure:"variant"`
	Mode           string `mapstructure:"mode"`
	GloballyDirect bool   `mapstructure:"globally-direct"`
	AllVariant     string `mapstructure:"all-variant"`
	BinVariant     string `mapstructure:"bin-variant"`
}

type MerchantAllowList struct {
	Variant      string   `mapstructure:"variant"`
	ProcessorIDs []string `mapstructure:"processor-ids"`
}

type BinAllowList struct {
	ProcessorID string   `mapstructure:"processor-id"`
	Bins        []string `mapstructure:"bins"`
}

type Routing struct {
	DefaultVariant    string              `mapstructure:"default-variant"`
	SandboxVariant    string              `mapstructure:"sandbox-variant"`
	DirectProcessors  []DirectProcessor   `mapstructure:"direct-processors"`
	MerchantAllowList []MerchantAllowList `mapstructure:"merchant-allow-list"`
	BinAllowList      []BinAllowList      `mapstructure:"bin-allow-list"`
}

type IvaRate struct {
	Currency string  `mapstructure:"currency"`
	Rate     float64 `mapstructure:"rate"`
}

type Currency struct {
	RequiresConversion []string  `mapstructure:"requires-conversion"`
	IvaRates           []IvaRate `mapstructure:"iva-rates"`
}

type Deferred struct {
	CatalogCountries        []string `mapstructure:"catalog-countries"`
	CatalogMinMonths        int      `mapstructure:"catalog-min-months"`
	CatalogMaxMonths        int      `mapstructure:"catalog-max-months"`
	BrazilCountry           string   `mapstructure:"brazil-country"`
	CentralAmericaProcessor string   `mapstructure:"central-america-processor"`
}

type VoidLimit struct {
	Country           string `mapstructure:"country"`
	DomesticDays      int    `mapstructure:"domestic-days"`
	InternationalDays int    `mapstructure:"international-days"`
}

type PartialVoid struct {
	Country    string   `mapstructure:"country"`
	Processors []string `mapstructure:"processors"`
}

type Void struct {
	DefaultLimitDays      int           `mapstructure:"default-limit-days"`
	LimitProcessors       []string      `mapstructure:"limit-processors"`
	Limits                []VoidLimit   `mapstructure:"limits"`
	PreauthVoidProcessors []string      `mapstructure:"preauth-void-processors"`
	PartialAllowList      []PartialVoid `mapstructure:"partial-allow-list"`
	PartialDenyProcessors []string      `mapstructure:"partial-deny-processors"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Callback Callback `mapstructure:"callback"`
	Server   Server   `mapstructure:"server"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
	Storage  Storage  `mapstructure:"storage"`
	Services Services `mapstructure:"services"`
	Charge   Charge   `mapstructure:"charge"`
	Routing  Routing  `mapstructure:"routing"`
	Currency Currency `mapstructure:"currency"`
	Deferred Deferred `mapstructure:"deferred"`
	Void     Void     `mapstructure:"void"`
}

// LoadConfig reads config.yaml from path on top of Default. A .env file in the
// working directory is loaded first so its values can override yaml keys
// through the environment (database.host -> DATABASE_HOST).
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	config := baseDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}

	return fillLists(config), nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
