package config

import (
	"fmt"
	"slices"
	"time"
)

const (
	VariantAurus   = "aurus"
	VariantSandbox = "sandbox"
)

// Default returns the behavioral constants the service has always run with.
func Default() *Config {
	return fillLists(baseDefaults())
}

// baseDefaults holds the scalar defaults. Lists are filled after decoding
// because viper merges a shorter yaml list into a longer default one.
func baseDefaults() *Config {
	return &Config{
		Kafka: Kafka{
			Writer: KafkaWriter{BatchSize: 100, BatchTimeoutMs: 100},
			Broker: KafkaBroker{URL: "localhost:9092"},
			Topic:  KafkaTopic{Transactions: "transactions", CallbackMessages: "callback-messages"},
			Reader: KafkaReader{GroupID: "card-payments"},
		},
		Callback: Callback{
			Processor: CallbackProcessor{Parallelism: 1000, RescheduleDelayMs: 10_000, MaxDeliveryAttempts: 3},
			Producer:  CallbackProducer{PollingIntervalMs: 500, FetchSize: 200, RescheduleDelayMs: 10_000, MaxPublishAttempts: 3},
			Sender:    CallbackSender{TimeoutMs: 10_000},
		},
		Server:  Server{Port: "8080", RequestTimeoutMs: 29000},
		Storage: Storage{Backend: "pg"},
		Services: Services{
			ExternalTimeoutMs: 25_000,
			Functions: Functions{
				TransactionRule:    "transactionRule",
				CurrencyConversion: "currencyConversion",
				BinInfo:            "binInfo",
				Void:               "voidTransaction",
				Chargeback:         "chargeback",
			},
		},
		Charge: Charge{
			AmountThreshold:               0,
			TokenExpiryMinutes:            30,
			RemainingTimeThresholdMs:      18_000,
			CaptureTolerancePercent:       20,
			ReauthCaptureTolerancePercent: 20,
		},
		Routing: Routing{
			DefaultVariant: VariantAurus,
			SandboxVariant: VariantSandbox,
		},
		Deferred: Deferred{
			CatalogMinMonths:        2,
			CatalogMaxMonths:        48,
			BrazilCountry:           "Brazil",
			CentralAmericaProcessor: "BAC Processor",
		},
		Void: Void{
			DefaultLimitDays: 365,
		},
	}
}

func fillLists(c *Config) *Config {
	if len(c.Charge.ThreeDS.VisaECI) == 0 {
		c.Charge.ThreeDS.VisaECI = []string{"05", "06", "07"}
	}
	if len(c.Charge.ThreeDS.MastercardECI) == 0 {
		c.Charge.ThreeDS.MastercardECI = []string{"00", "01", "02"}
	}
	if len(c.Currency.RequiresConversion) == 0 {
		c.Currency.RequiresConversion = []string{"UF", "CLF"}
	}
	if len(c.Currency.IvaRates) == 0 {
		c.Currency.IvaRates = []IvaRate{{Currency: "CLP", Rate: 0.19}}
	}
	if len(c.Deferred.CatalogCountries) == 0 {
		c.Deferred.CatalogCountries = []string{"Colombia", "Peru"}
	}
	return c
}

func (d Database) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func (s Server) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

func (s Services) ExternalTimeout() time.Duration {
	return time.Duration(s.ExternalTimeoutMs) * time.Millisecond
}

func (s Services) AcquirerURL(variant string) (string, bool) {
	for _, a := range s.Acquirers {
		if a.Variant == variant {
			return a.URL, true
		}
	}
	return "", false
}

func (c Charge) TokenExpiry() time.Duration {
	return time.Duration(c.TokenExpiryMinutes) * time.Minute
}

func (c Charge) RemainingTimeThreshold() time.Duration {
	return time.Duration(c.RemainingTimeThresholdMs) * time.Millisecond
}

func (c Charge) HidesReference(merchantID string) bool {
	return slices.Contains(c.ReferenceDenyList, merchantID)
}

func (c Currency) NeedsConversion(currency string) bool {
	return slices.Contains(c.RequiresConversion, currency)
}

// IvaRate returns the configured rate for currency, zero when none is set.
func (c Currency) IvaRate(currency string) float64 {
	for _, r := range c.IvaRates {
		if r.Currency == currency {
			return r.Rate
		}
	}
	return 0
}

func (r Routing) DirectProcessor(name string) (DirectProcessor, bool) {
	for _, p := range r.DirectProcessors {
		if p.Processor == name {
			return p, true
		}
	}
	return DirectProcessor{}, false
}

func (r Routing) AllowedProcessorIDs(variant string) []string {
	for _, l := range r.MerchantAllowList {
		if l.Variant == variant {
			return l.ProcessorIDs
		}
	}
	return nil
}

func (r Routing) AllowedBins(processorID string) []string {
	for _, l := range r.BinAllowList {
		if l.ProcessorID == processorID {
			return l.Bins
		}
	}
	return nil
}

func (v Void) Limit(country string) (VoidLimit, bool) {
	for _, l := range v.Limits {
		if l.Country == country {
			return l, true
		}
	}
	return VoidLimit{}, false
}

func (v Void) PartialAllowed(country, processor string) bool {
	for _, p := range v.PartialAllowList {
		if p.Country == country {
			return slices.Contains(p.Processors, processor)
		}
	}
	return false
}
