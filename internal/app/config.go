package app

import (
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/kitchen-orders/internal/storage"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KITCHEN_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Events    EventsConfig
	Auth      AuthConfig
	Ordering  OrderingConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Storage backend: postgres, firestore or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KITCHEN_STORAGE_DATABASEURL or DATABASE_URL)" flag:"database-url"`
	Firestore   FirestoreConfig
}

// FirestoreConfig selects the Firestore project.
type FirestoreConfig struct {
	ProjectID    string `usage:"Google Cloud project of the Firestore database"`
	EmulatorHost string `usage:"Firestore emulator host:port"`
}

// EventsConfig enables order event transports. The log sink is always on.
type EventsConfig struct {
	Kafka     KafkaConfig
	PubSub    PubSubConfig
	WebSocket bool `default:"true" usage:"Serve the staff WebSocket feed"`
}

// KafkaConfig enables the Kafka producer when brokers are set.
type KafkaConfig struct {
	Brokers        []string      `usage:"Kafka bootstrap brokers"`
	Topic          string        `default:"kitchen.order-events" usage:"Kafka topic of order events"`
	EnqueueTimeout time.Duration `default:"250ms" usage:"Max wait for a backlogged producer before dropping an event"`
}

// PubSubConfig enables the Pub/Sub publisher when a topic is set.
type PubSubConfig struct {
	ProjectID string `usage:"Google Cloud project of the Pub/Sub topic"`
	Topic     string `usage:"Pub/Sub topic of order events"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `usage:"HS256 secret for bearer tokens (KITCHEN_AUTH_JWTSECRET)" flag:"jwt-secret"`
}

// OrderingConfig toggles order intake policies.
type OrderingConfig struct {
	EnforceSchedule bool `default:"true" usage:"Reject orders outside the branch ordering schedule" flag:"enforce-schedule"`
}

// RateLimitConfig controls the per-client token bucket.
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
		EnvPrefix: "KITCHEN",
		Files:     []string{"config.yaml", "/etc/kitchen/config.yaml"},
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

// Validate checks settings that defaults cannot fix.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if c.Events.PubSub.Topic != "" && c.Events.PubSub.ProjectID == "" {
		return errors.New("pubsub topic set without a project id")
	}
	return nil
}

// Validate checks the driver and its required settings.
func (c StorageConfig) Validate() error {
	switch c.Driver {
	case storage.DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set KITCHEN_STORAGE_DATABASEURL or DATABASE_URL")
		}
	case storage.DriverFirestore, storage.DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Driver)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KITCHEN_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if c.Events.PubSub.ProjectID == "" {
		c.Events.PubSub.ProjectID = c.Storage.Firestore.ProjectID
	}
	c.Events.Kafka.Brokers = slices.DeleteFunc(c.Events.Kafka.Brokers, func(b string) bool { return b == "" })
}
