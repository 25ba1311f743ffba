package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Banking   BankingConfig
	Scheduler SchedulerConfig
	TLS       TLSConfig
	Firebase  FirebaseConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	AllowedHosts []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

// BankingConfig drives the open banking aggregation pipeline: the
// identity presented to provider banks, the consent approval poll
// budget, and the transaction cache behavior.
type BankingConfig struct {
	ClientID           string
	ClientSecret       string
	RequestingBank     string
	RequestingBankName string
	ConsentReason      string
	ConsentValidity    time.Duration
	PollInterval       time.Duration
	PollAttempts       int
	TransactionTTL     time.Duration
	SyncWindowDays     int
	SyncConcurrency    int
	RequestTimeout     time.Duration
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TLSConfig struct {
	Enabled      bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
}

type FirebaseConfig struct {
	CredentialsFile string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	// Parse scheduler configuration
	schedulerEnabled := getBoolEnv("SCHEDULER_ENABLED", true)
	schedulerTimes := strings.Split(getEnv("SCHEDULER_TIMES", "05:00,10:00,14:00,20:00"), ",")
	schedulerWorkers, err := strconv.Atoi(getEnv("SCHEDULER_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_WORKERS: %w", err)
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := strconv.Atoi(getEnv("SCHEDULER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_QUEUE_SIZE: %w", err)
	}
	schedulerRunOnStartup := getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false)

	// Parse banking configuration
	consentValidity, err := time.ParseDuration(getEnv("BANKING_CONSENT_VALIDITY", "2160h"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANKING_CONSENT_VALIDITY: %w", err)
	}
	pollInterval, err := time.ParseDuration(getEnv("BANKING_POLL_INTERVAL", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANKING_POLL_INTERVAL: %w", err)
	}
	pollAttempts, err := strconv.Atoi(getEnv("BANKING_POLL_ATTEMPTS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANKING_POLL_ATTEMPTS: %w", err)
	}
	transactionTTL, err := time.ParseDuration(getEnv("BANKING_TRANSACTION_TTL", "300s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANKING_TRANSACTION_TTL: %w", err)
	}
	syncWindowDays, err := strconv.Atoi(getEnv("BANKING_SYNC_WINDOW_DAYS", "90"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANKING_SYNC_WINDOW_DAYS: %w", err)
	}
	syncConcurrency, err := strconv.Atoi(getEnv("BANKING_SYNC_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANKING_SYNC_CONCURRENCY: %w", err)
	}
	requestTimeout, err := time.ParseDuration(getEnv("BANKING_REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANKING_REQUEST_TIMEOUT: %w", err)
	}

	// Parse TLS configuration
	tlsEnabled := getBoolEnv("TLS_ENABLED", false)
	tlsCertPath := getEnv("TLS_CERT_PATH", "")
	tlsKeyPath := getEnv("TLS_KEY_PATH", "")
	tlsRedirectHTTP := getBoolEnv("TLS_REDIRECT_HTTP", false)

	// Parse allowed hosts (comma-separated list)
	allowedHostsStr := getEnv("ALLOWED_HOSTS", "")
	var allowedHosts []string
	if allowedHostsStr != "" {
		for _, host := range strings.Split(allowedHostsStr, ",") {
			host = strings.TrimSpace(host)
			if host != "" {
				allowedHosts = append(allowedHosts, host)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Host:         getEnv("HOST", "0.0.0.0"),
			AllowedHosts: allowedHosts,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "moneta"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "moneta"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Banking: BankingConfig{
			ClientID:           getEnv("BANKING_CLIENT_ID", ""),
			ClientSecret:       getEnv("BANKING_CLIENT_SECRET", ""),
			RequestingBank:     getEnv("BANKING_REQUESTING_BANK", "team24"),
			RequestingBankName: getEnv("BANKING_REQUESTING_BANK_NAME", "Moneta"),
			ConsentReason:      getEnv("BANKING_CONSENT_REASON", "Account aggregation"),
			ConsentValidity:    consentValidity,
			PollInterval:       pollInterval,
			PollAttempts:       pollAttempts,
			TransactionTTL:     transactionTTL,
			SyncWindowDays:     syncWindowDays,
			SyncConcurrency:    syncConcurrency,
			RequestTimeout:     requestTimeout,
		},
		Scheduler: SchedulerConfig{
			Enabled:       schedulerEnabled,
			ScheduleTimes: schedulerTimes,
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  schedulerRunOnStartup,
		},
		TLS: TLSConfig{
			Enabled:      tlsEnabled,
			CertPath:     tlsCertPath,
			KeyPath:      tlsKeyPath,
			RedirectHTTP: tlsRedirectHTTP,
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "moneta-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Banking.RequestingBank == "" {
		return nil, fmt.Errorf("BANKING_REQUESTING_BANK is required")
	}
	if cfg.Banking.PollAttempts < 1 {
		return nil, fmt.Errorf("BANKING_POLL_ATTEMPTS must be at least 1")
	}
	if cfg.Banking.SyncConcurrency < 1 {
		return nil, fmt.Errorf("BANKING_SYNC_CONCURRENCY must be at least 1")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return nil, fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED=true")
		}
		if cfg.TLS.KeyPath == "" {
			return nil, fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED=true")
		}
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
