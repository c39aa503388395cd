package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	strutil "idmask/pkg/platform/strings"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Addr            string        `env:"IDMASK_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"IDMASK_REQUEST_TIMEOUT" envDefault:"45s"`
	PrivateKey      string        `env:"PRIVATE_KEY"`
	TrustedKey      string        `env:"TRUSTED_PUBLIC_KEY"`
	UniqueHumanSalt string        `env:"UNIQUE_HUMAN_SALT"`

	Log       Log       `envPrefix:"LOG_"`
	SmartID   SmartID   `envPrefix:"SMART_ID_"`
	OFAC      OFAC      `envPrefix:"OFAC_"`
	Store     Store     `envPrefix:"STORE_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	Passkeys  Passkeys  `envPrefix:"PASSKEYS_"`
	Database  Database  `envPrefix:"DATABASE_"`
	Kafka     Kafka     `envPrefix:"KAFKA_"`
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// SmartID configures the national eID provider client.
type SmartID struct {
	ConfigURL      string        `env:"CONFIG_URL"`
	ProdUUID       string        `env:"UUID_PROD"`
	PollTimeout    time.Duration `env:"POLL_TIMEOUT" envDefault:"30s"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"35s"`
	ConfigCacheTTL time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"1m"`
	TrustAnchors   string        `env:"TRUST_ANCHORS"`
}

// OFAC configures the sanctions matching provider.
type OFAC struct {
	URL     string        `env:"URL" envDefault:"https://search.ofac-api.com/v3"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// Store configures the bounded session stores.
type Store struct {
	Driver        string        `env:"DRIVER" envDefault:"memory"`
	MaxSize       int           `env:"MAX_SIZE" envDefault:"5000"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	KeyPrefix     string        `env:"KEY_PREFIX" envDefault:"idmask"`

	Identity         StoreLimits `envPrefix:"IDENTITY_"`
	Ownership        StoreLimits `envPrefix:"OWNERSHIP_"`
	PasskeyChallenge StoreLimits `envPrefix:"PASSKEY_CHALLENGE_"`
}

// StoreLimits overrides the store defaults for one namespace. Zero means inherit.
type StoreLimits struct {
	MaxSize       int           `env:"MAX_SIZE"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL"`
}

// Resolve fills zero values from the store defaults.
func (l StoreLimits) Resolve(s Store) StoreLimits {
	if l.MaxSize <= 0 {
		l.MaxSize = s.MaxSize
	}
	if l.SweepInterval <= 0 {
		l.SweepInterval = s.SweepInterval
	}
	return l
}

// Redis configures the go-redis client.
type Redis struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// Passkeys selects the passkey document store backend.
type Passkeys struct {
	Driver string `env:"DRIVER" envDefault:"memory"`
}

// Database configures the Postgres pool.
type Database struct {
	URL      string `env:"URL"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

// Kafka configures the audit event producer. No brokers means log-only audit.
type Kafka struct {
	Brokers    []string `env:"BROKERS" envSeparator:","`
	AuditTopic string   `env:"AUDIT_TOPIC" envDefault:"idmask.audit"`
}

// RateLimit bounds how often one client may start a provider authentication.
type RateLimit struct {
	InitiatePerMinute int `env:"INITIATE_PER_MINUTE" envDefault:"10"`
}

// Load reads an optional dotenv file, then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse builds a Config from an explicit environment map.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes list settings and checks cross-field constraints.
func (c *Config) Validate() error {
	c.Kafka.Brokers = strutil.DedupeAndTrim(c.Kafka.Brokers)
	if c.PrivateKey == "" {
		return errors.New("PRIVATE_KEY is required")
	}
	if c.UniqueHumanSalt == "" {
		return errors.New("UNIQUE_HUMAN_SALT is required")
	}
	if c.SmartID.TrustAnchors == "" {
		return errors.New("SMART_ID_TRUST_ANCHORS is required")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL is required when STORE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Passkeys.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when PASSKEYS_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported PASSKEYS_DRIVER %q", c.Passkeys.Driver)
	}
	if c.Store.MaxSize <= 0 {
		return errors.New("STORE_MAX_SIZE must be positive")
	}
	if c.Store.SweepInterval <= 0 {
		return errors.New("STORE_SWEEP_INTERVAL must be positive")
	}
	if c.RequestTimeout > 0 && c.RequestTimeout < c.SmartID.HTTPTimeout {
		return errors.New("IDMASK_REQUEST_TIMEOUT must not be shorter than SMART_ID_HTTP_TIMEOUT")
	}
	if c.SmartID.HTTPTimeout < c.SmartID.PollTimeout {
		return errors.New("SMART_ID_HTTP_TIMEOUT must not be shorter than SMART_ID_POLL_TIMEOUT")
	}
	return nil
}
