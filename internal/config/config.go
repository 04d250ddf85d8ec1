package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultPayPalBaseURL = "https://api-m.paypal.com"
	defaultBrandName     = "The Gratitude Loop"
	defaultReturnURL     = "https://your-app.com/payment-success"
	defaultCancelURL     = "https://your-app.com/payment-cancel"
	defaultTimeoutMs     = 10_000
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	PayPal   PayPal
	Checkout Checkout

	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string
	LokiURL      string
}

type PayPal struct {
	BaseURL string
	Timeout time.Duration
}

// Checkout holds the static values given to the processor with every order.
type Checkout struct {
	ReturnURL string
	CancelURL string
	BrandName string
}

// New returns a viper instance bound to the process environment.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PAYPAL_API_BASE_URL", defaultPayPalBaseURL)
	v.SetDefault("HTTP_TIMEOUT_MS", defaultTimeoutMs)
	v.SetDefault("CHECKOUT_RETURN_URL", defaultReturnURL)
	v.SetDefault("CHECKOUT_CANCEL_URL", defaultCancelURL)
	v.SetDefault("CHECKOUT_BRAND_NAME", defaultBrandName)
	v.SetDefault("KAFKA_TOPIC", "ledger-events")
	return v
}

func Load(v *viper.Viper) (*Config, error) {
	dbSource := v.GetString("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	timeoutMs := v.GetInt("HTTP_TIMEOUT_MS")
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}

	var brokers []string
	for _, b := range strings.Split(v.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &Config{
		DBSource: dbSource,
		Port:     v.GetString("SERVER_PORT"),
		Env:      v.GetString("ENVIRONMENT"),
		PayPal: PayPal{
			BaseURL: strings.TrimRight(v.GetString("PAYPAL_API_BASE_URL"), "/"),
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
		Checkout: Checkout{
			ReturnURL: v.GetString("CHECKOUT_RETURN_URL"),
			CancelURL: v.GetString("CHECKOUT_CANCEL_URL"),
			BrandName: v.GetString("CHECKOUT_BRAND_NAME"),
		},
		RedisURL:     v.GetString("REDIS_URL"),
		KafkaBrokers: brokers,
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
		LokiURL:      v.GetString("LOKI_URL"),
	}, nil
}
