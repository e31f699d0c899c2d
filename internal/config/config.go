// Package config loads server settings from an optional YAML file and
// environment variables. Environment values win over the file; the file
// wins over the defaults in setDefaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr" env:"ADDR"`
		CORSOrigin      string        `yaml:"cors_origin" env:"CORS_ORIGIN"`
		SeedEnabled     bool          `yaml:"seed_enabled" env:"SEED_ENABLED"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"dsn" env:"DATABASE_URL"`
	} `yaml:"database"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
		JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
		// BootstrapAdmins lists external subjects granted the admin flag the
		// first time they sync.
		BootstrapAdmins []string `yaml:"bootstrap_admins" env:"BOOTSTRAP_ADMINS"`
	} `yaml:"auth"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Moderation struct {
		ReportWindow time.Duration `yaml:"report_window" env:"REPORT_WINDOW"`
		ReportMax    int           `yaml:"report_max" env:"REPORT_MAX"`
	} `yaml:"moderation"`

	Presence struct {
		SweepSchedule  string        `yaml:"sweep_schedule" env:"PRESENCE_SWEEP_SCHEDULE"`
		IdleCutoff     time.Duration `yaml:"idle_cutoff" env:"PRESENCE_IDLE_CUTOFF"`
		RecentlyActive time.Duration `yaml:"recently_active" env:"PRESENCE_RECENTLY_ACTIVE"`
	} `yaml:"presence"`

	Ranking struct {
		MatchWeight      float64 `yaml:"match_weight" env:"RANK_MATCH_WEIGHT"`
		PriceWeight      float64 `yaml:"price_weight" env:"RANK_PRICE_WEIGHT"`
		ReputationWeight float64 `yaml:"reputation_weight" env:"RANK_REPUTATION_WEIGHT"`
	} `yaml:"ranking"`

	Reviews struct {
		Window time.Duration `yaml:"window" env:"REVIEW_WINDOW"`
	} `yaml:"reviews"`

	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		Channel  string `yaml:"channel" env:"REDIS_CHANNEL"`
	} `yaml:"redis"`
}

// Load reads configPath (if it exists) and then the environment. A .env
// file in the working directory is loaded first when present; variables
// already set in the process environment are not overwritten by it.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	setDefaults(cfg)

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := processStructFields(cfg); err != nil {
		return nil, fmt.Errorf("load from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Server.Addr = ":8080"
	cfg.Server.CORSOrigin = "*"
	cfg.Server.ShutdownTimeout = 10 * time.Second

	// modernc.org/sqlite URI parameters:
	//   _pragma=foreign_keys(1)   enforce FK constraints on every connection
	//   _pragma=journal_mode(WAL) readers don't block the writer
	//   _pragma=busy_timeout(5000) wait instead of returning SQLITE_BUSY
	cfg.Database.DSN = "tutormarket.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	cfg.Auth.JWTSecret = "changeme-use-a-real-secret-in-production"
	cfg.Auth.JWTIssuer = "tutormarket-auth"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	cfg.Moderation.ReportWindow = time.Hour
	cfg.Moderation.ReportMax = 5

	cfg.Presence.SweepSchedule = "@every 10m"
	cfg.Presence.IdleCutoff = 10 * time.Minute
	cfg.Presence.RecentlyActive = 15 * time.Minute

	cfg.Ranking.MatchWeight = 0.5
	cfg.Ranking.PriceWeight = 0.3
	cfg.Ranking.ReputationWeight = 0.2

	cfg.Reviews.Window = 30 * 24 * time.Hour

	cfg.Redis.Channel = "tutormarket:live"
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Moderation.ReportWindow <= 0 || c.Moderation.ReportMax <= 0 {
		return errors.New("moderation report window and max must be positive")
	}
	if c.Presence.IdleCutoff <= 0 {
		return errors.New("presence idle cutoff must be positive")
	}
	if c.Presence.SweepSchedule == "" {
		return errors.New("presence sweep schedule is required")
	}
	r := c.Ranking
	if r.MatchWeight < 0 || r.PriceWeight < 0 || r.ReputationWeight < 0 {
		return errors.New("ranking weights must not be negative")
	}
	if r.MatchWeight+r.PriceWeight+r.ReputationWeight == 0 {
		return errors.New("at least one ranking weight must be positive")
	}
	if c.Reviews.Window < 0 {
		return errors.New("review window must not be negative")
	}
	return nil
}
