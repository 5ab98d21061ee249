package config

import (
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Engine     EngineConfig     `yaml:"engine"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn" envconfig:"DATABASE_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the connection for the shared throttle/dedup store and
// the real-time channel. An empty URL selects the in-process fallback store.
type RedisConfig struct {
	URL string `yaml:"url" envconfig:"REDIS_URL"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" envconfig:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// SweepConfig drives the periodic expiry reconciliation.
type SweepConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// EngineConfig holds the tunables of the ticketing engine.
type EngineConfig struct {
	CallTimeoutMinutes    int     `yaml:"call_timeout_minutes"`
	KioskExpiryHours      int     `yaml:"kiosk_expiry_hours"`
	KioskHourlyLimit      int     `yaml:"kiosk_hourly_limit"`
	ProximityKM           float64 `yaml:"proximity_km"`
	PresenceProximityKM   float64 `yaml:"presence_proximity_km"`
	DefaultServiceMinutes float64 `yaml:"default_service_minutes"`
}

// Load reads the configuration from the given path and applies environment
// overrides for secrets and connection strings.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Sweep.IntervalSeconds <= 0 {
		cfg.Sweep.IntervalSeconds = 60
	}
	cfg.Sweep.Interval = time.Duration(cfg.Sweep.IntervalSeconds) * time.Second

	if cfg.Engine.CallTimeoutMinutes <= 0 {
		cfg.Engine.CallTimeoutMinutes = 5
	}
	if cfg.Engine.KioskExpiryHours <= 0 {
		cfg.Engine.KioskExpiryHours = 4
	}
	if cfg.Engine.KioskHourlyLimit <= 0 {
		cfg.Engine.KioskHourlyLimit = 5
	}
	if cfg.Engine.ProximityKM <= 0 {
		cfg.Engine.ProximityKM = 1.0
	}
	if cfg.Engine.PresenceProximityKM <= 0 {
		cfg.Engine.PresenceProximityKM = 0.5
	}
	if cfg.Engine.DefaultServiceMinutes <= 0 {
		cfg.Engine.DefaultServiceMinutes = 5
	}

	return &cfg, nil
}
