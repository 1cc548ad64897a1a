package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (DAIRY9_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (DAIRY9_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (DAIRY9_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Matching     MatchingConfig
	Reservation  ReservationConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// MatchingConfig controls retailer matching.
type MatchingConfig struct {
	MaxSearchRadiusKm float64 `default:"50" usage:"Hard cap on the retailer search radius in km" flag:"max-search-radius-km"`
}

// ReservationConfig controls retry behaviour for contended reservations.
type ReservationConfig struct {
	MaxRetries int           `default:"3"    usage:"Retries on inventory lock conflicts"`
	RetryDelay time.Duration `default:"25ms" usage:"Delay between conflict retries"`
}

// RedisConfig controls the idempotency store. An empty address disables it.
type RedisConfig struct {
	Addr string `default:"" usage:"Redis address for idempotency keys (empty disables)"`
}

// KafkaConfig controls reservation event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses (empty disables event publishing)"`
	Topic   string   `default:"fulfillment.events" usage:"Topic for reservation lifecycle events"`
	Buffer  int      `default:"256" usage:"Publisher inbox buffer size"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DAIRY9",
		Files:     []string{"config.yaml", "/etc/dairy9/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set DAIRY9_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the DAIRY9_-prefixed
// configuration.
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
