package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	RxSigningSecret     string        `mapstructure:"RX_SIGNING_SECRET"`
	PharmacyReceiveWait time.Duration `mapstructure:"PHARMACY_RECEIVE_WAIT"`
	PharmacyFillWait    time.Duration `mapstructure:"PHARMACY_FILL_WAIT"`
	AdvanceRetries      int           `mapstructure:"ADVANCE_RETRIES"`
	CatalogCacheTTL     time.Duration `mapstructure:"CATALOG_CACHE_TTL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PHARMACY_RECEIVE_WAIT", "15m")
	v.SetDefault("PHARMACY_FILL_WAIT", "30m")
	v.SetDefault("ADVANCE_RETRIES", 3)
	v.SetDefault("CATALOG_CACHE_TTL", "5m")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RX_SIGNING_SECRET")
	v.BindEnv("PHARMACY_RECEIVE_WAIT")
	v.BindEnv("PHARMACY_FILL_WAIT")
	v.BindEnv("ADVANCE_RETRIES")
	v.BindEnv("CATALOG_CACHE_TTL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Prescriptions are
// signed with RX_SIGNING_SECRET, so production refuses to start without one.
func (c *Config) Validate() error {
	if c.IsProduction() && c.RxSigningSecret == "" {
		return fmt.Errorf("RX_SIGNING_SECRET is required in production")
	}
	if c.RxSigningSecret != "" && len(c.RxSigningSecret) < 32 {
		return fmt.Errorf("RX_SIGNING_SECRET must be at least 32 bytes, got %d", len(c.RxSigningSecret))
	}
	if c.PharmacyReceiveWait <= 0 || c.PharmacyFillWait <= 0 {
		return fmt.Errorf("pharmacy wait intervals must be positive")
	}
	if c.AdvanceRetries < 1 {
		return fmt.Errorf("ADVANCE_RETRIES must be at least 1, got %d", c.AdvanceRetries)
	}
	return nil
}
