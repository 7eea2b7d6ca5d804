package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config contains application configuration
type Config struct {
	RunAddress       string
	DatabaseURI      string
	JWTSecret        string
	AuditSinkAddress string
	WelcomeGrant     int64
	CheckoutTimeout  time.Duration
}

// NewConfig creates a new configuration from environment variables or flags
func NewConfig() *Config {
	var cfg Config
	var welcomeGrant int64

	// Parse flags
	flag.StringVar(&cfg.RunAddress, "a", "", "Server run address")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "Database URI")
	flag.StringVar(&cfg.JWTSecret, "s", "", "JWT signing secret")
	flag.StringVar(&cfg.AuditSinkAddress, "r", "", "Audit event sink address")
	flag.Int64Var(&welcomeGrant, "g", 0, "Welcome grant in points for auto-provisioned users")
	flag.Parse()

	cfg.WelcomeGrant = welcomeGrant

	// Override with env vars if present
	if envAddr := os.Getenv("RUN_ADDRESS"); envAddr != "" {
		cfg.RunAddress = envAddr
	}

	if envDBURI := os.Getenv("DATABASE_URI"); envDBURI != "" {
		cfg.DatabaseURI = envDBURI
	}

	if envSecret := os.Getenv("JWT_SECRET"); envSecret != "" {
		cfg.JWTSecret = envSecret
	}

	if envAudit := os.Getenv("AUDIT_SINK_ADDRESS"); envAudit != "" {
		cfg.AuditSinkAddress = envAudit
	}

	if envGrant := os.Getenv("WELCOME_GRANT"); envGrant != "" {
		if grant, err := strconv.ParseInt(envGrant, 10, 64); err == nil {
			cfg.WelcomeGrant = grant
		}
	}

	// Set defaults if needed
	if cfg.RunAddress == "" {
		cfg.RunAddress = ":8080"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "perkstore-dev-secret"
	}
	if cfg.CheckoutTimeout == 0 {
		cfg.CheckoutTimeout = 5 * time.Second
	}

	return &cfg
}
