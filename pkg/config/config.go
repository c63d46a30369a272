// Package config loads engine configuration from environment variables.
package config

import "os"

// Config holds engine configuration.
type Config struct {
	// DatabaseDriver selects the claim store backend: "sqlite", "postgres",
	// or "memory".
	DatabaseDriver string
	// DatabaseURL is the postgres DSN or the sqlite file path.
	DatabaseURL string
	// AuditSink is "stdout" or a file path for the audit log.
	AuditSink string
	LogLevel  string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	driver := os.Getenv("CLAIMCHAIN_DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbURL := os.Getenv("CLAIMCHAIN_DB_URL")
	if dbURL == "" {
		dbURL = "claimchain.db"
	}

	auditSink := os.Getenv("CLAIMCHAIN_AUDIT_SINK")
	if auditSink == "" {
		auditSink = "stdout"
	}

	logLevel := os.Getenv("CLAIMCHAIN_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		DatabaseDriver: driver,
		DatabaseURL:    dbURL,
		AuditSink:      auditSink,
		LogLevel:       logLevel,
	}
}
