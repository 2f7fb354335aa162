package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings, populated from the environment with
// sensible defaults for local development.
type Config struct {
	Port   string `envconfig:"PORT" default:"8080"`
	DBPath string `envconfig:"DB_PATH" default:"payments.db"`

	// SettlementDelay models the lag to an external processor before an
	// approved payment is marked completed.
	SettlementDelay time.Duration `envconfig:"SETTLEMENT_DELAY" default:"1s"`

	// RefundDelay is the deferred-completion delay for refunds.
	RefundDelay time.Duration `envconfig:"REFUND_COMPLETION_DELAY" default:"2s"`

	// ReaperInterval is how often the scheduler drains due jobs.
	ReaperInterval time.Duration `envconfig:"REAPER_INTERVAL" default:"1s"`

	// StuckRefundThreshold is how old a processing refund must be before
	// the startup recovery sweep considers it stuck.
	StuckRefundThreshold time.Duration `envconfig:"STUCK_REFUND_THRESHOLD" default:"5m"`

	// MerchantSeedPath is read on startup when the merchants table is empty.
	MerchantSeedPath string `envconfig:"MERCHANT_SEED_PATH" default:"testdata/merchants.json"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	return &cfg, nil
}
