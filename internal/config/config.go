package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080" validate:"required,numeric"`

	Database Database

	// JWTSecret signs auth tokens. It has no default.
	JWTSecret string        `env:"JWT_SECRET,required,notEmpty" validate:"required,min=16"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"72h" validate:"gt=0"`

	// LazySignup lets anonymous visitors submit answers; a throwaway
	// account is created on their first submission.
	LazySignup bool `env:"SAQ_LAZY_SIGNUP" envDefault:"false"`

	// AdminAPIKey guards the catalog import/export routes. Empty disables them.
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

type Database struct {
	Driver   string `env:"DB_DRIVER" envDefault:"postgres" validate:"oneof=postgres sqlite"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"saq_user"`
	Password string `env:"DB_PASSWORD" envDefault:"saq_password"`
	Name     string `env:"DB_NAME" envDefault:"saq"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	// Path is the SQLite database file, used when Driver is sqlite.
	Path string `env:"DB_PATH" envDefault:"saq.db" validate:"required_if=Driver sqlite"`
}

// Load reads an optional .env file from the working directory, then the
// process environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// DSN returns the connection string for the configured driver.
func (d Database) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}
