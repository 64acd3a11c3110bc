// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the two store DSNs,
// the SFTP endpoint, ledger retention, and logging settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// SFTPConfig defines the remote file-transfer endpoint.
type SFTPConfig struct {
	Host     string // SFTP_HOST
	Port     int    // SFTP_PORT
	Username string // SFTP_USERNAME
	Password string // SFTP_PASSWORD
	// RemoteDir is the base directory under which all remote paths are
	// joined, mirroring the Sftp:RemoteDirectory setting of the original
	// deployment.
	RemoteDir string // SFTP_REMOTE_DIR
}

// Config holds all configuration values for the application.
type Config struct {
	// Stores. DSNs ending in ".db" (or containing "mode=memory") open the
	// pure-Go SQLite driver; anything else is treated as a PostgreSQL DSN.
	SourceDSN string // SOURCE_DSN: the store idempotent creates and exports run against
	DestDSN   string // DEST_DSN: the store bulk imports and post-migration reports run against

	// Logging
	LogLevel  string // LOG_LEVEL: debug|info|warn|error|fatal|panic
	LogPretty bool   // LOG_PRETTY: pretty console logs in dev

	// Idempotency ledger
	Retention     time.Duration // IDEMPOTENCY_RETENTION: how long ledger records are kept
	SweepInterval time.Duration // SWEEP_INTERVAL: cadence of the retention sweeper

	// Migration
	ImportBatchSize int // IMPORT_BATCH_SIZE: rows per bulk-insert statement

	// Remote transfer
	SFTP SFTPConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		SourceDSN: getenv("SOURCE_DSN", "shop.db"),
		DestDSN:   getenv("DEST_DSN", "shop_prod.db"),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		Retention:     getdur("IDEMPOTENCY_RETENTION", 7*24*time.Hour),
		SweepInterval: getdur("SWEEP_INTERVAL", 24*time.Hour),

		ImportBatchSize: getint("IMPORT_BATCH_SIZE", 1000),

		SFTP: SFTPConfig{
			Host:      getenv("SFTP_HOST", ""),
			Port:      getint("SFTP_PORT", 22),
			Username:  getenv("SFTP_USERNAME", ""),
			Password:  getenv("SFTP_PASSWORD", ""),
			RemoteDir: normalizeRemoteDir(getenv("SFTP_REMOTE_DIR", "/")),
		},
	}

	if strings.TrimSpace(cfg.SourceDSN) == "" {
		return cfg, errors.New("SOURCE_DSN must not be empty")
	}
	if strings.TrimSpace(cfg.DestDSN) == "" {
		return cfg, errors.New("DEST_DSN must not be empty")
	}
	if cfg.Retention <= 0 {
		return cfg, errors.New("IDEMPOTENCY_RETENTION must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return cfg, errors.New("SWEEP_INTERVAL must be > 0")
	}
	if cfg.ImportBatchSize < 1 {
		return cfg, errors.New("IMPORT_BATCH_SIZE must be >= 1")
	}
	if cfg.SFTP.Port < 1 || cfg.SFTP.Port > 65535 {
		return cfg, errors.New("SFTP_PORT must be a valid TCP port")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// normalizeRemoteDir ensures a leading '/' and strips any trailing '/'
// (except for the root directory itself).
func normalizeRemoteDir(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
