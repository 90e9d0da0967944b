package config

import (
	"errors"
	"os"
	"time"
)

var (
	// ErrMissingDatabaseURL is returned when a command needs the archive
	// but DATABASE_URL / database_url is not set.
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	// ErrMissingRedisURL is returned when a command needs the job queue
	// but REDIS_URL / redis_url is not set.
	ErrMissingRedisURL = errors.New("REDIS_URL is required")
)

const (
	defaultUserAgent  = "tvguide/1.0"
	defaultTimeout    = 30 * time.Second
	defaultServerPort = "8080"
)

// Config holds application configuration: the guide API endpoint and the
// optional backends (Postgres archive, Redis job queue).
type Config struct {
	BaseURL     string        `yaml:"base_url" env:"TVGUIDE_BASE_URL"`
	UserAgent   string        `yaml:"user_agent" env:"TVGUIDE_USER_AGENT"`
	Timeout     time.Duration `yaml:"timeout" env:"TVGUIDE_TIMEOUT"`
	DatabaseURL string        `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`
	ServerPort  string        `yaml:"server_port" env:"SERVER_PORT"`
}

// Load builds config from environment variables.
// If neither DATABASE_URL nor REDIS_URL is set, Load first applies .env.local
// and .env from the current directory and the executable's directory.
// Every variable is optional; an empty BaseURL means the library default.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" && os.Getenv("REDIS_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		BaseURL:     os.Getenv("TVGUIDE_BASE_URL"),
		UserAgent:   os.Getenv("TVGUIDE_USER_AGENT"),
		Timeout:     defaultTimeout,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		ServerPort:  os.Getenv("SERVER_PORT"),
	}
	if s := os.Getenv("TVGUIDE_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Timeout = d
		}
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.ServerPort == "" {
		c.ServerPort = defaultServerPort
	}
}

// RequireDatabase returns ErrMissingDatabaseURL when no archive is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// RequireRedis returns ErrMissingRedisURL when no job queue is configured.
func (c *Config) RequireRedis() error {
	if c.RedisURL == "" {
		return ErrMissingRedisURL
	}
	return nil
}
