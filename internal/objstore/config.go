package objstore

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const defaultBucket = "periscope"

// Config captures the object-store connection settings.
type Config struct {
	EndpointURL      string
	Region           string
	UseSSL           bool
	AccessKeyID      string
	SecretAccessKey  string
	Bucket           string
	RootPathOverride string
}

// Validate enforces the fields a real S3 endpoint needs. Configuration
// errors are fatal at construction time: a repository built on a bad
// backend config must fail fast, not surface per-operation errors later.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return wrapError(CodeEndpointUnreachable, true, fmt.Errorf("endpoint URL is required"))
	}
	if _, err := url.Parse(c.EndpointURL); err != nil {
		return wrapError(CodeEndpointUnreachable, true, fmt.Errorf("invalid endpoint URL: %w", err))
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return wrapError(CodeAuthInvalid, false, fmt.Errorf("access key and secret key are required"))
	}
	return nil
}

func (c *Config) normalizeDefaults() {
	if c.Bucket == "" {
		c.Bucket = defaultBucket
	}
}

// objectRoot resolves the on-disk root used when the config selects the
// local filesystem store.
func (c *Config) objectRoot() string {
	if c.RootPathOverride != "" {
		return c.RootPathOverride
	}
	if strings.HasPrefix(c.EndpointURL, "file://") {
		if u, err := url.Parse(c.EndpointURL); err == nil && u.Path != "" {
			return u.Path
		}
	}
	host := c.EndpointURL
	if u, err := url.Parse(c.EndpointURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return filepath.Join(os.TempDir(), "periscope-"+sanitizePath(host))
}

// New builds a store from config: a real S3 client for http/https
// endpoints, the local filesystem store for file:// URLs and dev roots.
func New(cfg *Config) (ObjectStore, error) {
	if cfg == nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("config is required"))
	}
	cfg.normalizeDefaults()
	if strings.HasPrefix(cfg.EndpointURL, "http://") || strings.HasPrefix(cfg.EndpointURL, "https://") {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return NewS3Client(cfg)
	}
	return NewLocalStore(cfg.objectRoot()), nil
}

func sanitizePath(raw string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_")
	return replacer.Replace(raw)
}

func joinPath(parts ...string) string {
	joined := filepath.ToSlash(filepath.Join(parts...))
	return strings.TrimPrefix(joined, "/")
}
