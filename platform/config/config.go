// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// CRMConfig provides settings for the CRM backend client.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMEmail() string
	GetCRMPassword() string
	GetCRMRequestTimeout() time.Duration
	GetCRMRequestsPerSecond() float64
	GetCRMCooldown() time.Duration
}

// JWTConfig provides JWT validation settings for the webhook middleware.
type JWTConfig interface {
	GetWebhookSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetPollInterval() time.Duration
	GetLeadRefreshInterval() time.Duration
}

// KVConfig provides settings for the persisted key-value store.
type KVConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetKVPrefix() string
}

// ReconcileConfig provides settings for the call reconciliation core.
type ReconcileConfig interface {
	GetLookupCacheTTL() time.Duration
	GetLedgerRetention() time.Duration
	GetLeadRefreshMinInterval() time.Duration
	GetLeadPageSize() int
}

// SnapshotConfig provides settings for the local lead snapshot store.
type SnapshotConfig interface {
	GetSnapshotPath() string
}

// DeviceConfig provides settings for the device call log spool.
type DeviceConfig interface {
	GetDeviceSpoolDir() string
}

// StorageConfig provides settings for MinIO S3-compatible recording storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketRecordings() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	CORSAllowAll           bool
	CORSOrigins            []string
	WebhookSecret          string
	CRMBaseURL             string
	CRMEmail               string
	CRMPassword            string
	CRMRequestTimeout      time.Duration
	CRMRequestsPerSecond   float64
	CRMCooldown            time.Duration
	RedisURL               string
	RedisTLSInsecure       bool
	KVPrefix               string
	AsynqQueueName         string
	AsynqConcurrency       int
	PollInterval           time.Duration
	LeadRefreshInterval    time.Duration
	LeadRefreshMinInterval time.Duration
	LeadPageSize           int
	LookupCacheTTL         time.Duration
	LedgerRetention        time.Duration
	SnapshotPath           string
	DeviceSpoolDir         string
	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOUseSSL            bool
	MinIOMaxFileSize       int64
	MinioBucketRecordings  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string                 { return c.CRMBaseURL }
func (c *Config) GetCRMEmail() string                   { return c.CRMEmail }
func (c *Config) GetCRMPassword() string                { return c.CRMPassword }
func (c *Config) GetCRMRequestTimeout() time.Duration   { return c.CRMRequestTimeout }
func (c *Config) GetCRMRequestsPerSecond() float64      { return c.CRMRequestsPerSecond }
func (c *Config) GetCRMCooldown() time.Duration         { return c.CRMCooldown }

// JWTConfig implementation
func (c *Config) GetWebhookSecret() string { return c.WebhookSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// SchedulerConfig / KVConfig implementation
func (c *Config) GetRedisURL() string                   { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool             { return c.RedisTLSInsecure }
func (c *Config) GetKVPrefix() string                   { return c.KVPrefix }
func (c *Config) GetAsynqQueueName() string             { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int              { return c.AsynqConcurrency }
func (c *Config) GetPollInterval() time.Duration        { return c.PollInterval }
func (c *Config) GetLeadRefreshInterval() time.Duration { return c.LeadRefreshInterval }

// ReconcileConfig implementation
func (c *Config) GetLookupCacheTTL() time.Duration         { return c.LookupCacheTTL }
func (c *Config) GetLedgerRetention() time.Duration        { return c.LedgerRetention }
func (c *Config) GetLeadRefreshMinInterval() time.Duration { return c.LeadRefreshMinInterval }
func (c *Config) GetLeadPageSize() int                     { return c.LeadPageSize }

// SnapshotConfig implementation
func (c *Config) GetSnapshotPath() string { return c.SnapshotPath }

// DeviceConfig implementation
func (c *Config) GetDeviceSpoolDir() string { return c.DeviceSpoolDir }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string          { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string         { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string         { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool              { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64        { return c.MinIOMaxFileSize }
func (c *Config) GetMinioBucketRecordings() string  { return c.MinioBucketRecordings }
func (c *Config) IsMinIOEnabled() bool              { return c.MinIOEndpoint != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":7080"),
		CORSAllowAll:           strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true"),
		CORSOrigins:            splitCSV(getEnv("CORS_ORIGINS", "http://localhost:7080")),
		WebhookSecret:          getEnv("WEBHOOK_JWT_SECRET", ""),
		CRMBaseURL:             strings.TrimRight(getEnv("CRM_BASE_URL", ""), "/"),
		CRMEmail:               getEnv("CRM_EMAIL", ""),
		CRMPassword:            getEnv("CRM_PASSWORD", ""),
		CRMRequestTimeout:      mustDuration(getEnv("CRM_REQUEST_TIMEOUT", "10s")),
		CRMRequestsPerSecond:   mustFloat(getEnv("CRM_REQUESTS_PER_SECOND", "5")),
		CRMCooldown:            mustDuration(getEnv("CRM_COOLDOWN", "60s")),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		KVPrefix:               getEnv("KV_PREFIX", "callsync"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "callsync"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "1")),
		PollInterval:           mustDuration(getEnv("POLL_INTERVAL", "3m")),
		LeadRefreshInterval:    mustDuration(getEnv("LEAD_REFRESH_INTERVAL", "5m")),
		LeadRefreshMinInterval: mustDuration(getEnv("LEAD_REFRESH_MIN_INTERVAL", "2m")),
		LeadPageSize:           mustInt(getEnv("LEAD_PAGE_SIZE", "100")),
		LookupCacheTTL:         mustDuration(getEnv("LOOKUP_CACHE_TTL", "30m")),
		LedgerRetention:        mustDuration(getEnv("LEDGER_RETENTION", "720h")),
		SnapshotPath:           getEnv("SNAPSHOT_PATH", "callsync.db"),
		DeviceSpoolDir:         getEnv("DEVICE_SPOOL_DIR", "spool"),
		MinIOEndpoint:          getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:            strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:       mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "104857600")),
		MinioBucketRecordings:  getEnv("MINIO_BUCKET_RECORDINGS", "call-recordings"),
	}

	if cfg.CRMBaseURL == "" {
		return nil, fmt.Errorf("CRM_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_JWT_SECRET is required")
	}
	if cfg.CRMEmail == "" || cfg.CRMPassword == "" {
		return nil, fmt.Errorf("CRM_EMAIL and CRM_PASSWORD are required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be a positive duration")
	}
	if cfg.LookupCacheTTL <= 0 {
		return nil, fmt.Errorf("LOOKUP_CACHE_TTL must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
