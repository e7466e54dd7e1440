// Package config содержит логику чтения конфигурации сервиса бронирования.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config содержит параметры конфигурации сервиса бронирования.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	BookingAPIAddress string `env:"BOOKING_API_ADDRESS"`
	BookingAPIToken   string `env:"BOOKING_API_TOKEN"`

	BaseCurrency   string        `env:"BASE_CURRENCY" envDefault:"IDR"`
	CurrencyRates  string        `env:"CURRENCY_RATES" envDefault:"USD:0.000064,EUR:0.000059,AUD:0.000097"`
	SessionSecret  string        `env:"SESSION_SECRET"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	MasterDataTTL  time.Duration `env:"MASTER_DATA_TTL" envDefault:"30m"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15m"`

	KeepSelectionsOnRename bool `env:"KEEP_SELECTIONS_ON_RENAME" envDefault:"false"`

	// Rates разобранная таблица CURRENCY_RATES: единиц валюты за единицу базовой.
	Rates map[string]decimal.Decimal
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envBookingAddress := cfg.BookingAPIAddress
	envBookingToken := cfg.BookingAPIToken

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "attempt ledger database URI")
	flag.StringVar(&cfg.BookingAPIAddress, "r", "", "booking API address")
	flag.StringVar(&cfg.BookingAPIToken, "t", "", "booking API bearer token")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envBookingAddress != "" {
		cfg.BookingAPIAddress = envBookingAddress
	}
	if envBookingToken != "" {
		cfg.BookingAPIToken = envBookingToken
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	cfg.BaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.BaseCurrency))
	rates, err := ParseRates(cfg.CurrencyRates)
	if err != nil {
		return nil, fmt.Errorf("parse CURRENCY_RATES: %w", err)
	}
	cfg.Rates = rates

	return cfg, nil
}

// ParseRates разбирает строку вида "USD:0.000064,EUR:0.000059".
func ParseRates(raw string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		code, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("rate %q: expected CODE:RATE", pair)
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			return nil, fmt.Errorf("rate %q: empty currency code", pair)
		}

		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", pair, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate %q: must be positive", pair)
		}
		rates[code] = rate
	}
	return rates, nil
}
