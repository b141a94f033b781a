// Package config provides configuration loading for the recorder
// service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds recorder service configuration.
type Config struct {
	// Server settings
	HTTPAddr     string
	CacheTTLSecs int

	// Storage backend selection: "s3" or "local".
	StorageBackend string
	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3UseSSL       bool
	LocalRoot      string
	Bucket         string
	RootDirectory  string

	// Repository tuning
	ScanDays         int
	BatchScanDays    int
	PruneDays        int
	StoreConcurrency int
	OpTimeout        time.Duration
	WriteRate        float64

	// Daily stats counter fields; empty selects the defaults.
	CounterFields []string
}

// Load reads configuration from environment.
func Load() *Config {
	return &Config{
		HTTPAddr:         getEnv("RECORDER_HTTP_ADDR", ":8700"),
		CacheTTLSecs:     getEnvInt("RECORDER_CACHE_TTL_SECS", 3600),
		StorageBackend:   getEnv("RECORDER_STORAGE_BACKEND", "local"),
		S3Endpoint:       getEnv("RECORDER_S3_ENDPOINT", ""),
		S3Region:         getEnv("RECORDER_S3_REGION", ""),
		S3AccessKey:      getEnv("RECORDER_S3_ACCESS_KEY", ""),
		S3SecretKey:      getEnv("RECORDER_S3_SECRET_KEY", ""),
		S3UseSSL:         getEnv("RECORDER_S3_USE_SSL", "false") == "true",
		LocalRoot:        getEnv("RECORDER_LOCAL_ROOT", ""),
		Bucket:           getEnv("RECORDER_BUCKET", "periscope"),
		RootDirectory:    getEnv("RECORDER_ROOT_DIR", "periscope"),
		ScanDays:         getEnvInt("RECORDER_SCAN_DAYS", 10),
		BatchScanDays:    getEnvInt("RECORDER_BATCH_SCAN_DAYS", 5),
		PruneDays:        getEnvInt("RECORDER_PRUNE_DAYS", 30),
		StoreConcurrency: getEnvInt("RECORDER_STORE_CONCURRENCY", 8),
		OpTimeout:        time.Duration(getEnvInt("RECORDER_OP_TIMEOUT_SECS", 10)) * time.Second,
		WriteRate:        getEnvFloat("RECORDER_WRITE_RATE", 0),
		CounterFields:    getEnvList("RECORDER_COUNTER_TYPES"),
	}
}

// Validate fails fast on configuration the repository cannot run with.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "s3":
		if c.S3Endpoint == "" {
			return fmt.Errorf("RECORDER_S3_ENDPOINT is required for the s3 backend")
		}
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("RECORDER_S3_ACCESS_KEY and RECORDER_S3_SECRET_KEY are required for the s3 backend")
		}
	case "local":
	default:
		return fmt.Errorf("unknown storage backend %q (want s3 or local)", c.StorageBackend)
	}
	if c.RootDirectory == "" {
		return fmt.Errorf("RECORDER_ROOT_DIR must not be empty")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
