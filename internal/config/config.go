// Package config handles loading and parsing application configuration.
//
// Values come from the process environment. A YAML file is optional and,
// when given, provides the base values that environment variables override.
// The file path is taken from (in priority order):
//  1. An environment variable:  CONFIG_PATH=/path/to/config.yaml
//  2. A command-line flag:      --config=/path/to/config.yaml
//
// A .env file in the working directory is loaded first, without
// overriding variables that are already set.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
type Config struct {
	// Env controls log format and verbosity: "dev", "staging" or "prod".
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	Storage Storage `yaml:"storage"`

	HTTPServer `yaml:"http_server"`
}

// Storage selects and locates the database.
type Storage struct {
	// Driver is "sqlite" (database/sql backend) or "postgres"/"mysql"
	// (gorm backend).
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`

	// DatabaseURL is the connection string. Required for postgres and
	// mysql; for sqlite it overrides Path when set.
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	// Path is the SQLite database file.
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"storage/students.db"`
}

// HTTPServer holds settings specific to the HTTP server.
// Nested under http_server: in the YAML file.
type HTTPServer struct {
	// Addr is the full listen address, e.g. "localhost:8082". When empty
	// the server listens on ":" + Port.
	Addr string `yaml:"address" env:"HTTP_SERVER_ADDR"`
	Port string `yaml:"port" env:"PORT" env-default:"5000"`

	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"5s"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

// Address returns the TCP address to listen on.
func (h HTTPServer) Address() string {
	if h.Addr != "" {
		return h.Addr
	}
	return ":" + h.Port
}

// SQLitePath returns the database file for the sqlite driver.
func (s Storage) SQLitePath() string {
	if s.DatabaseURL != "" {
		return s.DatabaseURL
	}
	return s.Path
}

// Load reads the optional YAML file at path and the environment, then
// validates the result. An empty path means environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		// ReadConfig also applies env:"..." overrides and env-default values.
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("cannot read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath() == "" {
			return errors.New("config: sqlite driver needs STORAGE_PATH or DATABASE_URL")
		}
	case DriverPostgres, DriverMySQL:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("config: %s driver needs DATABASE_URL", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	if c.HTTPServer.Address() == ":" {
		return errors.New("config: no listen address: set PORT or HTTP_SERVER_ADDR")
	}

	return nil
}

// MustLoad reads, validates, and returns the application config.
//
// Functions prefixed with "Must" terminate the process on failure, so
// callers do not check an error: if this returns, the config is valid.
func MustLoad() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("cannot load .env: %s", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		flags := flag.String("config", "", "Path to an optional configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	return cfg
}
