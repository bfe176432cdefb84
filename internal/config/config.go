package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP (optional: empty URL disables movement events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Bootstrap administrator
	AdminUser string
	AdminPass string

	// Scope cache
	ScopeCacheTTL time.Duration

	// Reconciliation worker
	ReconcileInterval time.Duration
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finanzas.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finanzas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "movement_events"),

		AdminUser: getEnv("ADMIN_USER", "admin"),
		AdminPass: getEnv("ADMIN_PASS", ""),

		ScopeCacheTTL:     getEnvDuration("SCOPE_CACHE_TTL", 30*time.Second),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
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

	if c.AdminUser == "" {
		errors = append(errors, "admin user name cannot be empty")
	}

	if c.ScopeCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid scope cache TTL %v: must be at least 1 second", c.ScopeCacheTTL))
	} else if c.ScopeCacheTTL > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid scope cache TTL %v: must be at most 1 hour", c.ScopeCacheTTL))
	}

	if c.ReconcileInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at least 1 second", c.ReconcileInterval))
	} else if c.ReconcileInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at most 24 hours", c.ReconcileInterval))
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
