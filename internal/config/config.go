package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Log         LogConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Stripe      StripeConfig `envPrefix:"STRIPE_"`
	Checkout    CheckoutConfig
	Auth        AuthConfig
	Tickets     TicketConfig
	Reconcile   ReconcileConfig `envPrefix:"RECONCILE_"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Dir   string `env:"LOG_DIR"`
}

type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:":8084"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	CORSOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type DatabaseConfig struct {
	Driver       string        `env:"DB_DRIVER" envDefault:"postgres"`
	DSN          string        `env:"POSTGRES_DSN"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"file:checkout.db?cache=shared"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	MaxLifetime  time.Duration `env:"DB_MAX_LIFETIME" envDefault:"5m"`
	ConnectTries int           `env:"DB_CONNECT_RETRIES" envDefault:"5"`
}

type RedisConfig struct {
	Addr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	LockTTL time.Duration `env:"ORDER_LOCK_TTL" envDefault:"30s"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderEvents   string `env:"KAFKA_TOPIC_ORDER_EVENTS" envDefault:"boutique.order.events"`
	EmailOutbound string `env:"KAFKA_TOPIC_EMAIL" envDefault:"boutique.email.outbound"`
}

type StripeConfig struct {
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	Currency      string `env:"CURRENCY" envDefault:"chf"`
}

// CheckoutConfig carries the pricing policy and the storefront URLs. It is threaded
// into the pricing engine and the session builder at construction.
type CheckoutConfig struct {
	BaseURL               string          `env:"BASE_URL" envDefault:"http://localhost:3000"`
	FreeShippingThreshold decimal.Decimal `env:"FREE_SHIPPING_THRESHOLD" envDefault:"150"`
	StandardShippingFee   decimal.Decimal `env:"STANDARD_SHIPPING_FEE" envDefault:"9.90"`
	ExpressShippingFee    decimal.Decimal `env:"EXPRESS_SHIPPING_FEE" envDefault:"19.90"`
	ExpressReducedFee     decimal.Decimal `env:"EXPRESS_REDUCED_FEE" envDefault:"9.90"`
	GiftWrapFee           decimal.Decimal `env:"GIFT_WRAP_FEE" envDefault:"5.00"`
	TaxRate               decimal.Decimal `env:"TAX_RATE" envDefault:"0.081"`
	LoyaltyPointsPerCHF   decimal.Decimal `env:"LOYALTY_POINTS_PER_CHF" envDefault:"1"`
	GiftCardValidity      time.Duration   `env:"GIFT_CARD_VALIDITY" envDefault:"8760h"`
	DefaultEventCapacity  int             `env:"DEFAULT_EVENT_CAPACITY" envDefault:"0"`
	NotificationTimeout   time.Duration   `env:"NOTIFICATION_TIMEOUT" envDefault:"30s"`
}

type AuthConfig struct {
	OIDCIssuer string `env:"OIDC_ISSUER"`
}

type TicketConfig struct {
	QRSecret string `env:"QR_SECRET_KEY"`
	FontPath string `env:"TICKET_FONT_PATH"`
}

type ReconcileConfig struct {
	Enabled    bool          `env:"ENABLED" envDefault:"true"`
	Interval   time.Duration `env:"INTERVAL" envDefault:"5m"`
	StaleAfter time.Duration `env:"STALE_AFTER" envDefault:"30m"`
	BatchSize  int           `env:"BATCH_SIZE" envDefault:"50"`
}

// Load parses the process environment. Call godotenv.Load first to pick up a .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Checkout.TaxRate.IsNegative() {
		return fmt.Errorf("TAX_RATE must not be negative")
	}
	if c.Checkout.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("FREE_SHIPPING_THRESHOLD must not be negative")
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN not set")
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}
