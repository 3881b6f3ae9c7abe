// Package config loads service configuration from the environment, with an
// optional local config file for development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration. Every knob has a working default
// except the signing keys and the database DSN.
type Config struct {
	Env  string `yaml:"env" env:"FASTPROD_ENV" env-default:"dev"`
	HTTP struct {
		Addr            string        `yaml:"addr" env:"FASTPROD_HTTP_ADDR" env-default:":8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" env:"FASTPROD_HTTP_READ_TIMEOUT" env-default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"FASTPROD_HTTP_WRITE_TIMEOUT" env-default:"15s"`
		IdleTimeout     time.Duration `yaml:"idle_timeout" env:"FASTPROD_HTTP_IDLE_TIMEOUT" env-default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"FASTPROD_HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes" env:"FASTPROD_HTTP_MAX_BODY_BYTES" env-default:"65536"`
	} `yaml:"http"`
	DB struct {
		DSN string `yaml:"dsn" env:"FASTPROD_PG_DSN"`
	} `yaml:"db"`
	Redis struct {
		Addr     string `yaml:"addr" env:"FASTPROD_REDIS_ADDR"`
		Password string `yaml:"password" env:"FASTPROD_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"FASTPROD_REDIS_DB" env-default:"0"`
	} `yaml:"redis"`
	Auth struct {
		Issuer          string        `yaml:"issuer" env:"FASTPROD_AUTH_ISSUER" env-default:"fastprod-auth"`
		Keys            string        `yaml:"keys" env:"FASTPROD_AUTH_KEYS"`
		AccessTTL       time.Duration `yaml:"access_ttl" env:"FASTPROD_AUTH_ACCESS_TTL" env-default:"15m"`
		RefreshTTL      time.Duration `yaml:"refresh_ttl" env:"FASTPROD_AUTH_REFRESH_TTL" env-default:"336h"`
		ResetTTL        time.Duration `yaml:"reset_ttl" env:"FASTPROD_AUTH_RESET_TTL" env-default:"15m"`
		VerificationTTL time.Duration `yaml:"verification_ttl" env:"FASTPROD_AUTH_VERIFICATION_TTL" env-default:"24h"`
		DefaultRole     string        `yaml:"default_role" env:"FASTPROD_AUTH_DEFAULT_ROLE" env-default:"user"`
		PublicBaseURL   string        `yaml:"public_base_url" env:"FASTPROD_AUTH_PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
	} `yaml:"auth"`
	SMTP struct {
		Host     string `yaml:"host" env:"FASTPROD_SMTP_HOST"`
		Port     int    `yaml:"port" env:"FASTPROD_SMTP_PORT" env-default:"587"`
		Username string `yaml:"username" env:"FASTPROD_SMTP_USERNAME"`
		Password string `yaml:"password" env:"FASTPROD_SMTP_PASSWORD"`
		From     string `yaml:"from" env:"FASTPROD_SMTP_FROM" env-default:"no-reply@localhost"`
	} `yaml:"smtp"`
	RateLimit struct {
		RPS   float64 `yaml:"rps" env:"FASTPROD_RATE_LIMIT_RPS" env-default:"10"`
		Burst int     `yaml:"burst" env:"FASTPROD_RATE_LIMIT_BURST" env-default:"20"`
	} `yaml:"rate_limit"`
}

// Load reads the optional config file named by FASTPROD_CONFIG_PATH, then
// overlays environment variables, then validates.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("FASTPROD_CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("FASTPROD_PG_DSN is required")
	}
	if c.Auth.Keys == "" {
		return fmt.Errorf("FASTPROD_AUTH_KEYS is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return fmt.Errorf("refresh ttl must exceed access ttl")
	}
	return nil
}

// IsDev reports whether the service runs in a development environment.
func (c *Config) IsDev() bool { return c.Env == "dev" || c.Env == "local" }
