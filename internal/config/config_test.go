package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8700" {
		t.Fatalf("HTTPAddr = %q, want :8700", cfg.HTTPAddr)
	}
	if cfg.StorageBackend != "local" {
		t.Fatalf("StorageBackend = %q, want local", cfg.StorageBackend)
	}
	if cfg.Bucket != "periscope" || cfg.RootDirectory != "periscope" {
		t.Fatalf("bucket/root = %q/%q, want periscope/periscope", cfg.Bucket, cfg.RootDirectory)
	}
	if cfg.ScanDays != 10 || cfg.BatchScanDays != 5 || cfg.PruneDays != 30 {
		t.Fatalf("scan windows = %d/%d/%d, want 10/5/30", cfg.ScanDays, cfg.BatchScanDays, cfg.PruneDays)
	}
	if cfg.OpTimeout != 10*time.Second {
		t.Fatalf("OpTimeout = %v, want 10s", cfg.OpTimeout)
	}
	if cfg.CounterFields != nil {
		t.Fatalf("CounterFields = %v, want nil", cfg.CounterFields)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RECORDER_HTTP_ADDR", ":9000")
	t.Setenv("RECORDER_SCAN_DAYS", "3")
	t.Setenv("RECORDER_WRITE_RATE", "2.5")
	t.Setenv("RECORDER_COUNTER_TYPES", "requests, jobs ,,queries")

	cfg := Load()
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.ScanDays != 3 {
		t.Fatalf("ScanDays = %d, want 3", cfg.ScanDays)
	}
	if cfg.WriteRate != 2.5 {
		t.Fatalf("WriteRate = %v, want 2.5", cfg.WriteRate)
	}
	want := []string{"requests", "jobs", "queries"}
	if len(cfg.CounterFields) != len(want) {
		t.Fatalf("CounterFields = %v, want %v", cfg.CounterFields, want)
	}
	for i, f := range want {
		if cfg.CounterFields[i] != f {
			t.Fatalf("CounterFields[%d] = %q, want %q", i, cfg.CounterFields[i], f)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"local defaults", func(c *Config) {}, false},
		{"s3 without endpoint", func(c *Config) {
			c.StorageBackend = "s3"
			c.S3AccessKey = "k"
			c.S3SecretKey = "s"
		}, true},
		{"s3 without credentials", func(c *Config) {
			c.StorageBackend = "s3"
			c.S3Endpoint = "http://127.0.0.1:9000"
		}, true},
		{"s3 complete", func(c *Config) {
			c.StorageBackend = "s3"
			c.S3Endpoint = "http://127.0.0.1:9000"
			c.S3AccessKey = "k"
			c.S3SecretKey = "s"
		}, false},
		{"unknown backend", func(c *Config) { c.StorageBackend = "nfs" }, true},
		{"empty root", func(c *Config) { c.RootDirectory = "" }, true},
	}
	for _, tc := range cases {
		cfg := Load()
		tc.mutate(cfg)
		err := cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}
