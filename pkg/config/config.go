package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"interaction-dashboard/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Import modes
const (
	ImportModeAppend  = "append"
	ImportModeReplace = "replace"
)

// Config represents the complete application configuration
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Ingest    IngestConfig    `json:"ingest"`
	Dashboard DashboardConfig `json:"dashboard"`
	Messaging MessagingConfig `json:"messaging"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	WebSocket WebSocketConfig `json:"websocket"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	// HTTP port
	Port int `json:"port" env:"HTTP_PORT" default:"8080"`

	// Whether metrics endpoint is enabled
	EnableMetrics bool `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`

	// Read timeout for HTTP requests
	ReadTimeout time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`

	// Write timeout for HTTP responses
	WriteTimeout time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`

	// How long shutdown waits for in-flight requests
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`

	// Enable TLS for the HTTP server
	TLSEnabled bool `json:"tls_enabled" env:"HTTP_TLS_ENABLED" default:"false"`

	// TLS certificate path for HTTP server
	TLSCertFile string `json:"tls_cert_file" env:"HTTP_TLS_CERT_FILE"`

	// TLS key path for HTTP server
	TLSKeyFile string `json:"tls_key_file" env:"HTTP_TLS_KEY_FILE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Log level
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`

	// Log format (json or text)
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`

	// Log output file (empty = stdout)
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// IngestConfig controls CSV uploads
type IngestConfig struct {
	// Time zone used to interpret export timestamps
	Timezone string `json:"timezone" env:"INGEST_TIMEZONE" default:"Local"`

	// Location resolved from Timezone
	Location *time.Location `json:"-"`

	// Maximum accepted upload size in megabytes
	MaxUploadMB int `json:"max_upload_mb" env:"INGEST_MAX_UPLOAD_MB" default:"32"`

	// Default import mode (append or replace)
	Mode string `json:"mode" env:"IMPORT_MODE" default:"append"`
}

// MaxUploadBytes returns the upload cap in bytes
func (c IngestConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// DashboardConfig holds presentation defaults
type DashboardConfig struct {
	// Number of agents in the overview ranking
	TopAgents int `json:"top_agents" env:"DASHBOARD_TOP_AGENTS" default:"5"`

	// Table page size when none is requested
	DefaultPageSize int `json:"default_page_size" env:"DASHBOARD_DEFAULT_PAGE_SIZE" default:"10"`

	// Row cap of the print report
	PrintMaxRows int `json:"print_max_rows" env:"DASHBOARD_PRINT_MAX_ROWS" default:"50"`
}

// MessagingConfig holds AMQP settings for dataset events
type MessagingConfig struct {
	// Whether dataset events are published to AMQP
	Enabled bool `json:"enabled" env:"AMQP_ENABLED" default:"false"`

	// Broker URL
	AMQPUrl string `json:"amqp_url" env:"AMQP_URL"`

	// Exchange to publish to; empty uses the default exchange
	Exchange string `json:"exchange" env:"AMQP_EXCHANGE"`

	// Routing key for dataset events
	RoutingKey string `json:"routing_key" env:"AMQP_ROUTING_KEY" default:"dashboard.dataset"`

	// Queue declared when publishing to the default exchange
	QueueName string `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"dashboard_events"`

	// Timeout for a single publish
	PublishTimeout time.Duration `json:"publish_timeout" env:"AMQP_PUBLISH_TIMEOUT" default:"5s"`

	// Consecutive publish failures that open the circuit breaker
	BreakerThreshold int `json:"breaker_threshold" env:"AMQP_BREAKER_THRESHOLD" default:"5"`

	// How long the breaker stays open before a trial publish
	BreakerTimeout time.Duration `json:"breaker_timeout" env:"AMQP_BREAKER_TIMEOUT" default:"30s"`
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	// Whether HTTP rate limiting is enabled
	Enabled bool `json:"enabled" env:"RATE_LIMIT_ENABLED" default:"false"`

	// RequestsPerSecond is the sustained rate of HTTP requests allowed per second per client
	RequestsPerSecond float64 `json:"requests_per_second" env:"RATE_LIMIT_RPS" default:"100"`

	// BurstSize is the maximum number of HTTP requests allowed in a burst
	BurstSize int `json:"burst_size" env:"RATE_LIMIT_BURST" default:"200"`

	// BlockDuration is how long to block a client after exceeding limits
	BlockDuration time.Duration `json:"block_duration" env:"RATE_LIMIT_BLOCK_DURATION" default:"1m"`

	// WhitelistedIPs is a comma-separated list of IPs/CIDRs that bypass rate limiting
	WhitelistedIPs string `json:"whitelisted_ips" env:"RATE_LIMIT_WHITELIST_IPS"`

	// WhitelistedPaths is a comma-separated list of URL paths that bypass rate limiting
	WhitelistedPaths string `json:"whitelisted_paths" env:"RATE_LIMIT_WHITELIST_PATHS"`
}

// WebSocketConfig controls the dataset event stream
type WebSocketConfig struct {
	Enabled bool `json:"enabled" env:"WS_ENABLED" default:"true"`

	// Interval between server pings
	PingInterval time.Duration `json:"ping_interval" env:"WS_PING_INTERVAL" default:"30s"`
}

// Load loads the configuration from environment variables or .env file
func Load(logger *logrus.Logger) (*Config, error) {
	// Get current working directory
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			absPath, _ := filepath.Abs(envFile)
			logger.WithField("path", absPath).Debug("Attempting to load .env file")

			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom = absPath
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Warn("No .env file found, using environment variables only")
	}

	return FromEnv(logger)
}

// FromEnv builds the configuration from the process environment only
func FromEnv(logger *logrus.Logger) (*Config, error) {
	config := &Config{}

	if err := loadHTTPConfig(logger, &config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}

	if err := loadLoggingConfig(logger, &config.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to load logging configuration")
	}

	if err := loadIngestConfig(logger, &config.Ingest); err != nil {
		return nil, errors.Wrap(err, "failed to load ingest configuration")
	}

	if err := loadDashboardConfig(logger, &config.Dashboard); err != nil {
		return nil, errors.Wrap(err, "failed to load dashboard configuration")
	}

	if err := loadMessagingConfig(logger, &config.Messaging); err != nil {
		return nil, errors.Wrap(err, "failed to load messaging configuration")
	}

	if err := loadRateLimitConfig(logger, &config.RateLimit); err != nil {
		return nil, errors.Wrap(err, "failed to load rate limit configuration")
	}

	config.WebSocket.Enabled = getEnvBool("WS_ENABLED", true)
	config.WebSocket.PingInterval = getEnvDuration("WS_PING_INTERVAL", 30*time.Second)

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	httpPortStr := getEnv("HTTP_PORT", "8080")
	httpPort, err := strconv.Atoi(httpPortStr)
	if err != nil || httpPort < 1 || httpPort > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		config.Port = 8080
	} else {
		config.Port = httpPort
	}

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)

	readTimeoutStr := getEnv("HTTP_READ_TIMEOUT", "10s")
	readTimeout, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		logger.Warn("Invalid HTTP_READ_TIMEOUT value, using default: 10s")
		config.ReadTimeout = 10 * time.Second
	} else {
		config.ReadTimeout = readTimeout
	}

	writeTimeoutStr := getEnv("HTTP_WRITE_TIMEOUT", "30s")
	writeTimeout, err := time.ParseDuration(writeTimeoutStr)
	if err != nil {
		logger.Warn("Invalid HTTP_WRITE_TIMEOUT value, using default: 30s")
		config.WriteTimeout = 30 * time.Second
	} else {
		config.WriteTimeout = writeTimeout
	}

	config.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	config.TLSEnabled = getEnvBool("HTTP_TLS_ENABLED", false)
	config.TLSCertFile = getEnv("HTTP_TLS_CERT_FILE", "")
	config.TLSKeyFile = getEnv("HTTP_TLS_KEY_FILE", "")

	return nil
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) error {
	config.Level = getEnv("LOG_LEVEL", "info")

	_, err := logrus.ParseLevel(config.Level)
	if err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")

	return nil
}

func loadIngestConfig(logger *logrus.Logger, config *IngestConfig) error {
	config.Timezone = getEnv("INGEST_TIMEZONE", "Local")
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("unknown INGEST_TIMEZONE: %s", config.Timezone))
	}
	config.Location = loc

	config.MaxUploadMB = getEnvInt("INGEST_MAX_UPLOAD_MB", 32)
	if config.MaxUploadMB <= 0 {
		logger.Warn("Invalid INGEST_MAX_UPLOAD_MB value, using default: 32")
		config.MaxUploadMB = 32
	}

	config.Mode = strings.ToLower(getEnv("IMPORT_MODE", ImportModeAppend))
	if config.Mode != ImportModeAppend && config.Mode != ImportModeReplace {
		logger.Warnf("Invalid IMPORT_MODE '%s', defaulting to '%s'", config.Mode, ImportModeAppend)
		config.Mode = ImportModeAppend
	}

	return nil
}

func loadDashboardConfig(logger *logrus.Logger, config *DashboardConfig) error {
	config.TopAgents = getEnvInt("DASHBOARD_TOP_AGENTS", 5)
	if config.TopAgents <= 0 {
		logger.Warn("Invalid DASHBOARD_TOP_AGENTS value, using default: 5")
		config.TopAgents = 5
	}

	config.DefaultPageSize = getEnvInt("DASHBOARD_DEFAULT_PAGE_SIZE", 10)
	switch config.DefaultPageSize {
	case 10, 20, 50, 100:
	default:
		logger.Warn("DASHBOARD_DEFAULT_PAGE_SIZE must be one of 10, 20, 50, 100, using default: 10")
		config.DefaultPageSize = 10
	}

	config.PrintMaxRows = getEnvInt("DASHBOARD_PRINT_MAX_ROWS", 50)
	if config.PrintMaxRows <= 0 {
		logger.Warn("Invalid DASHBOARD_PRINT_MAX_ROWS value, using default: 50")
		config.PrintMaxRows = 50
	}

	return nil
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) error {
	config.Enabled = getEnvBool("AMQP_ENABLED", false)
	config.AMQPUrl = getEnv("AMQP_URL", "")
	config.Exchange = getEnv("AMQP_EXCHANGE", "")
	config.RoutingKey = getEnv("AMQP_ROUTING_KEY", "dashboard.dataset")
	config.QueueName = getEnv("AMQP_QUEUE_NAME", "dashboard_events")
	config.PublishTimeout = getEnvDuration("AMQP_PUBLISH_TIMEOUT", 5*time.Second)
	config.BreakerThreshold = getEnvInt("AMQP_BREAKER_THRESHOLD", 5)
	if config.BreakerThreshold <= 0 {
		logger.Warn("Invalid AMQP_BREAKER_THRESHOLD value, using default: 5")
		config.BreakerThreshold = 5
	}
	config.BreakerTimeout = getEnvDuration("AMQP_BREAKER_TIMEOUT", 30*time.Second)

	if config.Enabled {
		logger.WithFields(logrus.Fields{
			"exchange":    config.Exchange,
			"routing_key": config.RoutingKey,
			"queue":       config.QueueName,
		}).Info("AMQP dataset events enabled")
	}

	return nil
}

func loadRateLimitConfig(logger *logrus.Logger, config *RateLimitConfig) error {
	config.Enabled = getEnvBool("RATE_LIMIT_ENABLED", false)
	config.RequestsPerSecond = getEnvFloat("RATE_LIMIT_RPS", 100)
	config.BurstSize = getEnvInt("RATE_LIMIT_BURST", 200)

	blockDurationStr := getEnv("RATE_LIMIT_BLOCK_DURATION", "1m")
	var err error
	config.BlockDuration, err = time.ParseDuration(blockDurationStr)
	if err != nil {
		logger.Warnf("Invalid RATE_LIMIT_BLOCK_DURATION '%s', defaulting to 1m", blockDurationStr)
		config.BlockDuration = time.Minute
	}

	config.WhitelistedIPs = getEnv("RATE_LIMIT_WHITELIST_IPS", "127.0.0.1,::1")
	config.WhitelistedPaths = getEnv("RATE_LIMIT_WHITELIST_PATHS", "/health,/health/live,/health/ready")

	if config.Enabled {
		logger.WithFields(logrus.Fields{
			"rps":   config.RequestsPerSecond,
			"burst": config.BurstSize,
			"block": config.BlockDuration,
		}).Info("HTTP rate limiting enabled")
	}

	return nil
}

// validateConfig checks cross-field constraints
func validateConfig(logger *logrus.Logger, config *Config) error {
	if config.HTTP.TLSEnabled && (config.HTTP.TLSCertFile == "" || config.HTTP.TLSKeyFile == "") {
		return errors.New("HTTP_TLS_ENABLED requires HTTP_TLS_CERT_FILE and HTTP_TLS_KEY_FILE")
	}

	if config.Messaging.Enabled && config.Messaging.AMQPUrl == "" {
		return errors.New("AMQP_ENABLED is set but AMQP_URL is empty")
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond <= 0 {
			return errors.New("invalid RATE_LIMIT_RPS: must be positive")
		}
		if config.RateLimit.BurstSize <= 0 {
			return errors.New("invalid RATE_LIMIT_BURST: must be positive")
		}
	}

	if config.WebSocket.Enabled && config.WebSocket.PingInterval <= 0 {
		logger.Warn("WS_PING_INTERVAL must be positive, using 30s")
		config.WebSocket.PingInterval = 30 * time.Second
	}

	// Check if the log file can be created/written
	if config.Logging.OutputFile != "" {
		f, err := os.OpenFile(config.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("cannot write to log file: %s", config.Logging.OutputFile))
		}
		f.Close()
	}

	return nil
}

// ApplyLogging applies the logging configuration to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

// SplitList splits a comma-separated setting, dropping blanks
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getEnvFloat retrieves an environment variable and converts it to float64
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatValue
}
