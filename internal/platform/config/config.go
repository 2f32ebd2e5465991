package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Postgres carries the connection string for the consent database.
type Postgres struct {
	DSN string
}

// RedisConfig configures the optional Redis client used for distributed
// sweep locks. An empty URL disables Redis entirely.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the outbound status-event publisher. Empty brokers
// disable publishing.
type Kafka struct {
	Brokers []string
	Topic   string
}

// SweepConfig configures one expiration sweep. A sweep with a zero Interval
// is disabled; enabling is always explicit.
type SweepConfig struct {
	Interval time.Duration
	PageSize int
}

// Scheduler holds per-sweep configuration keyed by sweep kind.
type Scheduler struct {
	ConsentExpiration   SweepConfig
	UsedNonRecurring    SweepConfig
	NotConfirmedConsent SweepConfig
	NotConfirmedPayment SweepConfig
	AuthorisationExpiry SweepConfig
	StopListUnblock     SweepConfig
	LockTTL             time.Duration

	// ConfirmationWindow bounds how long a consent or payment may sit
	// unconfirmed before the not-confirmed sweeps reject it.
	ConfirmationWindow time.Duration
}

// Config is the process-wide configuration assembled from the environment.
type Config struct {
	Server         Server
	Postgres       Postgres
	Redis          RedisConfig
	Kafka          Kafka
	Scheduler      Scheduler
	RedirectSecret string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: envOr("CMS_ADDR", ":8090"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("CMS_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CMS_REDIS_URL"),
			PoolSize:     envInt("CMS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CMS_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("CMS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CMS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CMS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("CMS_KAFKA_BROKERS")),
			Topic:   envOr("CMS_KAFKA_TOPIC", "cms.authorisation.status"),
		},
		Scheduler: Scheduler{
			ConsentExpiration:   sweepFromEnv("CMS_SWEEP_CONSENT_EXPIRATION"),
			UsedNonRecurring:    sweepFromEnv("CMS_SWEEP_USED_NON_RECURRING"),
			NotConfirmedConsent: sweepFromEnv("CMS_SWEEP_NOT_CONFIRMED_CONSENT"),
			NotConfirmedPayment: sweepFromEnv("CMS_SWEEP_NOT_CONFIRMED_PAYMENT"),
			AuthorisationExpiry: sweepFromEnv("CMS_SWEEP_AUTHORISATION_EXPIRY"),
			StopListUnblock:     sweepFromEnv("CMS_SWEEP_STOP_LIST_UNBLOCK"),
			LockTTL:             envDuration("CMS_SWEEP_LOCK_TTL", 5*time.Minute),
			ConfirmationWindow:  envDuration("CMS_CONFIRMATION_WINDOW", 24*time.Hour),
		},
		RedirectSecret: envOr("CMS_REDIRECT_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}
}

// sweepFromEnv reads <prefix>_INTERVAL and <prefix>_PAGE_SIZE. A missing
// interval leaves the sweep disabled rather than defaulting it on.
func sweepFromEnv(prefix string) SweepConfig {
	return SweepConfig{
		Interval: envDuration(prefix+"_INTERVAL", 0),
		PageSize: envInt(prefix+"_PAGE_SIZE", 100),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
