// Package main implements the recorder HTTP server.
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/periscope/recorder-core/internal/config"
	"github.com/periscope/recorder-core/internal/objstore"
	"github.com/periscope/recorder-core/internal/server"
	"github.com/periscope/recorder-core/pkg/storage"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("failed to create object store: %v", err)
	}

	// Fail fast if the backend is unusable before serving traffic.
	ctx := context.Background()
	if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
		log.Fatalf("bucket %s is not usable: %v", cfg.Bucket, err)
	}

	stats := storage.NewDailyStatsService(store, cfg.Bucket, cfg.RootDirectory, cfg.CounterFields, cfg.OpTimeout)
	repo := storage.NewRepository(store, cfg.Bucket, cfg.RootDirectory, stats, storage.Settings{
		ScanDays:         cfg.ScanDays,
		BatchScanDays:    cfg.BatchScanDays,
		StoreConcurrency: cfg.StoreConcurrency,
		OpTimeout:        cfg.OpTimeout,
		WriteRate:        cfg.WriteRate,
	})

	srv := server.New(repo, stats, cfg.CacheTTLSecs, cfg.PruneDays)

	log.Printf("recorder server listening on %s (backend=%s bucket=%s root=%s)",
		cfg.HTTPAddr, cfg.StorageBackend, cfg.Bucket, cfg.RootDirectory)
	if err := http.ListenAndServe(cfg.HTTPAddr, srv.Handler()); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func buildStore(cfg *config.Config) (objstore.ObjectStore, error) {
	if cfg.StorageBackend == "s3" {
		return objstore.New(&objstore.Config{
			EndpointURL:     cfg.S3Endpoint,
			Region:          cfg.S3Region,
			UseSSL:          cfg.S3UseSSL,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.Bucket,
		})
	}
	return objstore.NewLocalStore(cfg.LocalRoot), nil
}
