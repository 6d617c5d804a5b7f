package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Server
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	CORSOrigin      string        `yaml:"cors_origin"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Database
	DBPath string `yaml:"db_path"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// AMQP (optional)
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		Port:            "5300",
		CORSOrigin:      "*",
		ShutdownTimeout: 15 * time.Second,
		DBPath:          "expenses.db",
		LogLevel:        "info",
		AMQPExchange:    "expenses",
		AMQPQueue:       "expense_created",
	}
}

// Load builds the configuration. Sources in increasing precedence: defaults,
// the YAML file named by CONFIG_FILE, then the environment (including a .env
// file in the working directory, when present).
func Load() (*Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.CORSOrigin = getEnv("CORS_ORIGIN", cfg.CORSOrigin)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// SlogLevel maps LogLevel to a slog.Level. Call Validate first.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.DBPath) == "" {
		errors = append(errors, "database path cannot be empty")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
