// Package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Store backends selectable with SEAT_STORE.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  DB_* values are only required when the MySQL
// store is selected.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	LogLevel       string // logrus level name
	Store          string // seat store backend: mysql | memory
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	Migrate        bool   // create tables on startup
	Seed           bool   // provision demo libraries and events when the store is empty
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time‑to‑live in minutes
	RefreshTTLDays int    // refresh token time‑to‑live in days
	BcryptCost     int    // bcrypt cost for password hashing
	RabbitURL      string // RabbitMQ URL for booking audit events; empty disables
	AuditConsumer  bool   // run the audit log consumer in this process
	AuditLogDir    string // directory of the consumer's booking.log
	AdminSignup    bool   // allow self-registration with role ADMIN
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		Store:          strings.ToLower(envStr("SEAT_STORE", StoreMySQL)),
		Migrate:        envBool("DB_MIGRATE", true),
		Seed:           envBool("SEED_DEMO", false),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		RabbitURL:      firstEnv("RABBITMQ_URL", "AMQP_URL"),
		AuditConsumer:  envBool("AUDIT_CONSUMER", false),
		AuditLogDir:    envStr("AUDIT_LOG_DIR", "logs"),
		AdminSignup:    envBool("ALLOW_ADMIN_SIGNUP", false),
	}
	if cfg.Store == StoreMySQL {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	} else if cfg.Store != StoreMemory {
		logrus.Fatalf("invalid SEAT_STORE %q (want mysql or memory)", cfg.Store)
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logrus.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		logrus.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
