package config // package config loads application configuration from environment variables

import (
	"log"      // log reports configuration errors and halts execution
	"os"       // os provides access to environment variables
)

// Config holds the core runtime configuration.  Each field corresponds to an
// environment variable; optional groups (Redis, rate limit, cache, payment)
// have their own loaders.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to verify access tokens
	AccessTTLMin int    // TTL of tokens minted by the token command
	LogLevel     string // debug, info, warn, error or off
	BrokerURL    string // RabbitMQ URL; empty disables events and the settlement queue
	AutoMigrate  bool   // apply pending migrations on serve
	AuditLogDir  string // directory of reservation.log written by the worker
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"), // empty allowed
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		BrokerURL:    BrokerURL(),
		AutoMigrate:  envBool("DB_AUTO_MIGRATE", false),
		AuditLogDir:  envStr("AUDIT_LOG_DIR", "logs"),
	}
}

// BrokerURL returns RABBITMQ_URL, falling back to AMQP_URL.
func BrokerURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
