package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	Environment     string        `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	TrustedProxies  []string      `envconfig:"TRUSTED_PROXIES"`

	// Requests per minute per client address.
	LoginRateLimit int `envconfig:"LOGIN_RATE_LIMIT" default:"20"`
	ScanRateLimit  int `envconfig:"SCAN_RATE_LIMIT" default:"60"`
}

// Security holds key material. Both keys are required outside development.
type Security struct {
	EncryptionKey string        `envconfig:"ENCRYPTION_KEY"`
	JWTSigningKey string        `envconfig:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `envconfig:"JWT_ISSUER" default:"medshare"`
	JWTAudience   string        `envconfig:"JWT_AUDIENCE" default:"medshare-api"`
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"15m"`
}

// Compliance tunes lockout and purpose validation.
type Compliance struct {
	LockoutThreshold int           `envconfig:"LOCKOUT_THRESHOLD" default:"3"`
	LockoutDuration  time.Duration `envconfig:"LOCKOUT_DURATION" default:"30m"`
	FailureWindow    time.Duration `envconfig:"FAILURE_WINDOW" default:"24h"`
	MinPurposeLength int           `envconfig:"MIN_PURPOSE_LENGTH" default:"10"`
}

// Disclosure tunes session housekeeping.
type Disclosure struct {
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1m"`
	AuditBuffer     int           `envconfig:"AUDIT_BUFFER" default:"0"`
}

// Database configures the optional Postgres backing for consents, audit and
// credentials. Empty URL keeps everything in memory.
type Database struct {
	URL             string        `envconfig:"URL"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`
	ConnMaxIdleTime time.Duration `envconfig:"CONN_MAX_IDLE_TIME" default:"1m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`
}

// RedisConfig configures the optional Redis backing for lockout state and
// disclosure sessions. Empty URL keeps them in memory.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// Kafka configures the optional audit sink.
type Kafka struct {
	Brokers    string `envconfig:"BROKERS"`
	AuditTopic string `envconfig:"AUDIT_TOPIC" default:"medshare.audit"`
}

// Seed lists credentials created at startup, as "email:password:ROLE"
// triples. Intended for local development.
type Seed struct {
	Credentials []string `envconfig:"CREDENTIALS"`
}

// Config is the full process configuration, read from MEDSHARE_* variables,
// e.g. MEDSHARE_SECURITY_ENCRYPTION_KEY or MEDSHARE_REDIS_URL.
type Config struct {
	Server     Server      `envconfig:"SERVER"`
	Security   Security    `envconfig:"SECURITY"`
	Compliance Compliance  `envconfig:"COMPLIANCE"`
	Disclosure Disclosure  `envconfig:"DISCLOSURE"`
	Database   Database    `envconfig:"DATABASE"`
	Redis      RedisConfig `envconfig:"REDIS"`
	Kafka      Kafka       `envconfig:"KAFKA"`
	Seed       Seed        `envconfig:"SEED"`
}

const envPrefix = "MEDSHARE"

// FromEnv loads and validates configuration from the environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Security.EncryptionKey) == "" {
		errs = append(errs, errors.New("MEDSHARE_SECURITY_ENCRYPTION_KEY must be set"))
	}
	if strings.TrimSpace(c.Security.JWTSigningKey) == "" {
		errs = append(errs, errors.New("MEDSHARE_SECURITY_JWT_SIGNING_KEY must be set"))
	}
	if c.Compliance.LockoutThreshold < 1 {
		errs = append(errs, errors.New("lockout threshold must be at least 1"))
	}
	if c.Compliance.LockoutDuration <= 0 {
		errs = append(errs, errors.New("lockout duration must be positive"))
	}
	if c.Compliance.FailureWindow < 0 {
		errs = append(errs, errors.New("failure window must not be negative"))
	}
	if c.Server.LoginRateLimit < 1 || c.Server.ScanRateLimit < 1 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Server.Environment == "production"
}
