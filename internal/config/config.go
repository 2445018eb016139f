package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Config holds the environment-derived configuration for the API process.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Port int    `env:"PORT"    envDefault:"8080"`

	MongoURI string `env:"MONGO_URI"`
	DBName   string `env:"DB_NAME" envDefault:"learnhub"`

	TokenIssuer           string        `env:"TOKEN_ISSUER"             envDefault:"learnhub"`
	AccessTokenSecret     string        `env:"JWT_ACCESS_SECRET"`
	RefreshTokenSecret    string        `env:"JWT_REFRESH_SECRET"`
	AccessTokenExpiresIn  time.Duration `env:"ACCESS_TOKEN_EXPIRES_IN"  envDefault:"15m"`
	RefreshTokenExpiresIn time.Duration `env:"REFRESH_TOKEN_EXPIRES_IN" envDefault:"168h"`

	OTPExpiresIn time.Duration `env:"OTP_EXPIRES_IN" envDefault:"10m"`
}

// New parses the configuration from environment variables.
func New(logger *zerolog.Logger) *Config {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment variables")
	}

	if err := cfg.validate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to validate configuration")
	}

	return &cfg
}

// IsProduction reports whether the process runs in the production
// environment; cookie security flags key off this.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// validate checks that required settings are present.
func (c *Config) validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("missing MONGO_URI environment variable")
	}
	if c.AccessTokenSecret == "" {
		return fmt.Errorf("missing JWT_ACCESS_SECRET environment variable")
	}
	if c.RefreshTokenSecret == "" {
		return fmt.Errorf("missing JWT_REFRESH_SECRET environment variable")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return nil
}
