package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-agent/internal/domain/fulfillment"
	"github.com/xenking/order-agent/internal/domain/pricing"
	"github.com/xenking/order-agent/internal/domain/shipment"
)

// Config holds the complete application configuration, loadable from
// environment variables (AGENT_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (AGENT_DATABASE_URL or DATABASE_URL); the catalog is kept in memory when empty" flag:"database-url"`
	Approval    ApprovalConfig
	Pricing     PricingConfig
	Shipment    ShipmentConfig
	Catalog     CatalogConfig
	Kafka       KafkaConfig
	Graceful    GracefulConfig
}

// ApprovalConfig controls when a human must approve an order.
type ApprovalConfig struct {
	Threshold int `default:"3" usage:"Orders for more units than this wait for approval"`
}

// PricingConfig holds the shipping fee formula. Amounts are decimal strings.
type PricingConfig struct {
	BaseFee    string `default:"5.99" usage:"Flat shipping fee" flag:"base-fee"`
	PerUnitFee string `default:"1.50" usage:"Shipping fee per unit" flag:"per-unit-fee"`
}

// ShipmentConfig controls the shipment simulator.
type ShipmentConfig struct {
	StepDelay      time.Duration `default:"800ms" usage:"Pause before each shipment progress step" flag:"step-delay"`
	MinTransitDays int           `default:"3" usage:"Earliest delivery, in days"`
	MaxTransitDays int           `default:"6" usage:"Latest delivery, in days"`
}

// CatalogConfig controls catalog synchronisation with the database.
type CatalogConfig struct {
	SyncSchedule string `default:"@every 1m" usage:"Cron schedule for reloading the catalog from the database" flag:"catalog-sync"`
}

// KafkaConfig enables publishing run events. Publishing is off when Brokers
// is empty.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers"`
	Topic   string   `default:"order-runs" usage:"Topic for order run events"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from an optional .env file, environment
// variables and YAML config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "AGENT",
		Files:     []string{"config.yaml", "/etc/order-agent/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values aconfig cannot check by type alone.
func (c *Config) Validate() error {
	if c.Approval.Threshold < 0 {
		return errors.Errorf("approval threshold must not be negative, got %d", c.Approval.Threshold)
	}
	if _, err := c.Pricing.Formula(); err != nil {
		return err
	}
	if c.Shipment.MinTransitDays < 0 || c.Shipment.MaxTransitDays < c.Shipment.MinTransitDays {
		return errors.Errorf("invalid transit days range %d..%d", c.Shipment.MinTransitDays, c.Shipment.MaxTransitDays)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// Formula parses the configured fees.
func (p PricingConfig) Formula() (pricing.Formula, error) {
	base, err := decimal.NewFromString(p.BaseFee)
	if err != nil {
		return pricing.Formula{}, errors.Wrapf(err, "parse base fee %q", p.BaseFee)
	}
	perUnit, err := decimal.NewFromString(p.PerUnitFee)
	if err != nil {
		return pricing.Formula{}, errors.Wrapf(err, "parse per unit fee %q", p.PerUnitFee)
	}
	return pricing.Formula{BaseFee: base, PerUnitFee: perUnit}, nil
}

// Policy returns the approval policy.
func (a ApprovalConfig) Policy() fulfillment.ApprovalPolicy {
	return fulfillment.ApprovalPolicy{Threshold: a.Threshold}
}

// Simulator returns the shipment simulator configuration.
func (s ShipmentConfig) Simulator() shipment.Config {
	return shipment.Config{
		StepDelay:      s.StepDelay,
		MinTransitDays: s.MinTransitDays,
		MaxTransitDays: s.MaxTransitDays,
	}
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's AGENT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
