package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store        string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (KART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	// SeedCatalog loads db/seed/catalog.json into the memory store on start.
	SeedCatalog bool `default:"true" usage:"Seed the memory store with the demo catalog" flag:"seed-catalog"`
	Redis       RedisConfig
	Kafka       KafkaConfig
	Orders      OrdersConfig
	Payment     PaymentConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig enables the customer order list cache when URL is set.
type RedisConfig struct {
	URL          string        `usage:"Redis URL for the order list cache (KART_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	OrderListTTL time.Duration `default:"1m" usage:"Lifetime of cached order list pages" flag:"order-list-ttl"`
}

// KafkaConfig enables order event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers" flag:"kafka-brokers"`
	Topic   string   `default:"kart.orders" usage:"Topic for order events" flag:"kafka-topic"`
}

// OrdersConfig tunes the order coordinator.
type OrdersConfig struct {
	MaxTxAttempts   int           `default:"3" usage:"Attempts per order transaction on serialization conflicts" flag:"max-tx-attempts"`
	HookConcurrency int           `default:"8" usage:"Concurrent post-commit hooks" flag:"hook-concurrency"`
	HookBacklog     int           `default:"1024" usage:"Post-commit hooks allowed to wait for a free slot" flag:"hook-backlog"`
	HookTimeout     time.Duration `default:"5s" usage:"Deadline for a single post-commit hook" flag:"hook-timeout"`
}

// PaymentConfig configures the built-in random authorizer.
type PaymentConfig struct {
	ApprovalRate float64 `default:"0.5" usage:"Share of checkouts approved by the demo authorizer" flag:"payment-approval-rate"`
	// Seed fixes the authorizer's random sequence. Zero seeds from the clock.
	Seed uint64 `default:"0" usage:"Random seed for the demo authorizer" flag:"payment-seed"`
}

// RateLimitConfig controls the per-principal token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"10" usage:"Sustained requests per second per principal" flag:"rate-limit-rps"`
	Burst int     `default:"20" usage:"Token bucket size" flag:"rate-limit-burst"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store %q: want %s or %s", c.Store, StorePostgres, StoreMemory)
	}
	if c.Payment.ApprovalRate < 0 || c.Payment.ApprovalRate > 1 {
		return errors.Errorf("payment approval rate %v is outside [0, 1]", c.Payment.ApprovalRate)
	}
	if c.RateLimit.RPS <= 0 {
		return errors.New("rate limit RPS must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = getenv("REDIS_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
