package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Ledger
	LedgerDataFile string

	// Reports
	ReportDir          string
	ReportCleanupDelay time.Duration
	UploadTimeout      time.Duration

	// Google Drive
	DriveCredentialsFile string
	DriveFolderID        string

	// S3
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Prefix          string

	// AMQP (empty URL disables events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export history (empty path disables it)
	ExportLogDBPath string

	// Rate limiting
	RateLimitPerMinute int
	RateLimitBurst     int

	// Worker
	MirrorFlushInterval time.Duration
	MirrorMaxRetries    int
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		LedgerDataFile: getEnv("LEDGER_DATA_FILE", "./data/data.json"),

		ReportDir:          getEnv("REPORT_DIR", "./data/reports"),
		ReportCleanupDelay: getEnvDuration("REPORT_CLEANUP_DELAY", 8*time.Second),
		UploadTimeout:      getEnvDuration("UPLOAD_TIMEOUT", 60*time.Second),

		DriveCredentialsFile: getEnv("DRIVE_CREDENTIALS_FILE", "credentials/drive-sa.json"),
		DriveFolderID:        getEnv("DRIVE_FOLDER_ID", ""),

		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Prefix:          getEnv("S3_PREFIX", "reports/"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "monthbook"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_changes"),

		ExportLogDBPath: getEnv("EXPORT_LOG_DB_PATH", ""),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		MirrorFlushInterval: getEnvDuration("MIRROR_FLUSH_INTERVAL", 5*time.Second),
		MirrorMaxRetries:    getEnvInt("MIRROR_MAX_RETRIES", 3),
	}
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if strings.TrimSpace(c.LedgerDataFile) == "" {
		errors = append(errors, "ledger data file cannot be empty")
	}
	if strings.TrimSpace(c.ReportDir) == "" {
		errors = append(errors, "report directory cannot be empty")
	}

	if c.ReportCleanupDelay < 0 || c.ReportCleanupDelay > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report cleanup delay %v: must be between 0 and 1 hour", c.ReportCleanupDelay))
	}
	if c.UploadTimeout < time.Second || c.UploadTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid upload timeout %v: must be between 1 second and 10 minutes", c.UploadTimeout))
	}

	if c.S3Bucket != "" {
		if c.S3Region == "" {
			errors = append(errors, "S3 region is required when S3 bucket is set")
		}
		if (c.S3AccessKeyID == "") != (c.S3SecretAccessKey == "") {
			errors = append(errors, "S3 access key id and secret access key must be set together")
		}
		if c.S3Endpoint != "" {
			if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid S3 endpoint '%s': must be an absolute URL", c.S3Endpoint))
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

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if c.MirrorFlushInterval < 100*time.Millisecond || c.MirrorFlushInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid mirror flush interval %v: must be between 100ms and 24 hours", c.MirrorFlushInterval))
	}
	if c.MirrorMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid mirror max retries %d: must be at least 1", c.MirrorMaxRetries))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// DriveConfigured reports whether both Drive settings are present. The
// credentials file must also exist for uploads to be attempted.
func (c *Config) DriveConfigured() bool {
	return c.DriveFolderID != "" && c.DriveCredentialsFile != ""
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
