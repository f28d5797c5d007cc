// Package config loads the service configuration from SWEETSHOP_*
// environment variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. SWEETSHOP_SERVER_ADDR.
const Prefix = "SWEETSHOP"

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Images   ImageConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`
}

// DatabaseConfig selects and locates the database.
type DatabaseConfig struct {
	Driver      string `envconfig:"DRIVER" default:"sqlite"` // sqlite or postgres
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"sweetshop.sqlite3"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
}

// AuthConfig holds token and sign-in settings.
type AuthConfig struct {
	JWTSecret string        `envconfig:"JWT_SECRET" default:""` // empty: generated and kept in the settings table
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	RateLimit float64       `envconfig:"RATE_LIMIT" default:"1"` // sign-in attempts per second per IP
	RateBurst int           `envconfig:"RATE_BURST" default:"10"`
}

// RedisConfig enables the Redis revocation list when URL is set.
type RedisConfig struct {
	URL string `envconfig:"URL" default:""`
}

// ImageConfig limits uploaded item images.
type ImageConfig struct {
	MaxBytes     int64 `envconfig:"MAX_BYTES" default:"5242880"`
	MaxDimension int   `envconfig:"MAX_DIMENSION" default:"1024"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	File string `envconfig:"FILE" default:""`
}

// Source returns the database source for the configured driver.
func (d *DatabaseConfig) Source() string {
	if d.Driver == "postgres" {
		return d.PostgresDSN
	}
	return d.SQLitePath
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that envconfig cannot express. Call it again
// after overriding fields, as command-line flags do.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver %q (want sqlite or postgres)", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.PostgresDSN == "" {
		return fmt.Errorf("%s_DATABASE_POSTGRES_DSN is required for the postgres driver", Prefix)
	}
	if c.Auth.RateLimit <= 0 || c.Auth.RateBurst <= 0 {
		return fmt.Errorf("auth rate limit and burst must be positive")
	}
	return nil
}
