package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Converter
	InputFormats      []string
	OutputFormat      string
	ConvertWorkers    int
	TempDir           string
	MaxFileSizeMB     int64
	ConvertTimeoutSec int
	SofficePath       string

	// Server
	Host string
	Port int

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Staging cleanup
	StagingRetentionMin int
	CleanupIntervalMin  int

	// Monitoring
	MetricsPort int

	// History (optional, enabled when DB_HOST is set)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Notifications (optional, enabled when TELEGRAM_BOT_TOKEN is set)
	TelegramBotToken string
	AdminIDs         []int64
}

func LoadConfig() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{}

	// Parse Converter config
	cfg.InputFormats = parseFormats(getEnv("INPUT_FORMATS",
		"doc,docx,odt,rtf,txt,xls,xlsx,ods,ppt,pptx,odp"))
	if len(cfg.InputFormats) == 0 {
		return nil, fmt.Errorf("INPUT_FORMATS must contain at least one extension")
	}
	cfg.OutputFormat = strings.ToLower(getEnv("OUTPUT_FORMAT", "pdf"))
	cfg.ConvertWorkers = getEnvInt("CONVERT_WORKERS", 4)
	if cfg.ConvertWorkers < 1 {
		return nil, fmt.Errorf("CONVERT_WORKERS must be at least 1")
	}
	cfg.TempDir = getEnv("TEMP_DIR", "tmp/conversions")
	cfg.MaxFileSizeMB = getEnvInt64("MAX_FILE_SIZE_MB", 50)
	if cfg.MaxFileSizeMB < 1 {
		return nil, fmt.Errorf("MAX_FILE_SIZE_MB must be at least 1")
	}
	cfg.ConvertTimeoutSec = getEnvInt("CONVERT_TIMEOUT_SEC", 120)
	if cfg.ConvertTimeoutSec < 1 {
		return nil, fmt.Errorf("CONVERT_TIMEOUT_SEC must be at least 1")
	}
	cfg.SofficePath = getEnv("SOFFICE_PATH", "")

	// Parse Server config
	cfg.Host = getEnv("HOST", "0.0.0.0")
	cfg.Port = getEnvInt("PORT", 8000)

	// Parse Logging config
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")
	cfg.LogFile = getEnv("LOG_FILE", "logs/converter.log")

	// Parse Staging cleanup config
	cfg.StagingRetentionMin = getEnvInt("STAGING_RETENTION_MIN", 60)
	cfg.CleanupIntervalMin = getEnvInt("CLEANUP_INTERVAL_MIN", 15)

	// Parse Monitoring config
	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9090)

	// Parse History config
	cfg.DBHost = getEnv("DB_HOST", "")
	cfg.DBPort = getEnvInt("DB_PORT", 5432)
	cfg.DBName = getEnv("DB_NAME", "document_converter")
	cfg.DBUser = getEnv("DB_USER", "converter_user")
	cfg.DBPassword = getEnv("DB_PASSWORD", "")
	cfg.DBSSLMode = getEnv("DB_SSL_MODE", "disable")
	if cfg.DBHost != "" && cfg.DBPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required when DB_HOST is set")
	}

	// Parse Notification config
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.AdminIDs = parseAdminIDs(getEnv("ADMIN_IDS", ""))
	if cfg.TelegramBotToken != "" && len(cfg.AdminIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_IDS is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

// SupportsFormat reports whether the extension is in the input allow-list.
// The check is case-insensitive and tolerates a leading dot.
func (c *Config) SupportsFormat(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range c.InputFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// MaxFileSizeBytes returns the upload limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// MaxBatchFiles is the admission limit for batch conversions.
func (c *Config) MaxBatchFiles() int {
	return c.ConvertWorkers * 2
}

// ConvertTimeout returns the per-conversion timeout as a duration.
func (c *Config) ConvertTimeout() time.Duration {
	return time.Duration(c.ConvertTimeoutSec) * time.Second
}

// HistoryEnabled reports whether the Postgres audit store is configured.
func (c *Config) HistoryEnabled() bool {
	return c.DBHost != ""
}

// NotifyEnabled reports whether the Telegram failure notifier is configured.
func (c *Config) NotifyEnabled() bool {
	return c.TelegramBotToken != ""
}

// GetDatabaseDSN returns the PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func parseFormats(input string) []string {
	parts := strings.Split(input, ",")
	formats := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		part = strings.TrimPrefix(part, ".")
		if part != "" {
			formats = append(formats, part)
		}
	}

	return formats
}

func parseAdminIDs(input string) []int64 {
	parts := strings.Split(input, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}

	return ids
}
