// Package storage implements the entry repository on top of an object
// store. There is no query engine underneath: entries are addressed by
// a {type}/{date}/{batchId}/{uuid} key scheme and retrieval is a
// bounded scan over recent date partitions, trading completeness of
// very old data for bounded latency.
package storage

import (
	"context"
	"errors"
	"log"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/periscope/recorder-core/internal/objstore"
	"github.com/periscope/recorder-core/pkg/entry"
)

// ErrEntryNotFound is returned by Find for a uuid that does not exist
// in the store. It is an expected outcome, not a backend fault.
var ErrEntryNotFound = errors.New("entry not found")

const (
	dateLayout        = "2006-01-02"
	monitoredTagsFile = "monitored-tags.json"
	statsDirectory    = "stats"
	unbatched         = "unbatched"
)

// Settings tune the repository's scan windows and write path.
type Settings struct {
	// ScanDays bounds Get's lookback when no batch narrows the scan.
	ScanDays int
	// BatchScanDays bounds Get's lookback when a batch id is set.
	BatchScanDays int
	// StoreConcurrency caps parallel outstanding writes per Store call.
	StoreConcurrency int
	// OpTimeout is the per-call deadline applied to every backend
	// operation. A hung backend becomes a logged, dropped write rather
	// than a blocked producer.
	OpTimeout time.Duration
	// WriteRate limits entry writes per second; zero disables limiting.
	WriteRate float64
	// WriteBurst is the limiter burst size when WriteRate is set.
	WriteBurst int
}

func (s *Settings) normalize() {
	if s.ScanDays <= 0 {
		s.ScanDays = 10
	}
	if s.BatchScanDays <= 0 {
		s.BatchScanDays = 5
	}
	if s.StoreConcurrency <= 0 {
		s.StoreConcurrency = 8
	}
	if s.OpTimeout <= 0 {
		s.OpTimeout = 10 * time.Second
	}
	if s.WriteBurst <= 0 {
		s.WriteBurst = 1
	}
}

// StoreOutcome is the per-entry result of a batched Store call.
type StoreOutcome struct {
	UUID string
	Type entry.Type
	Err  error
}

// BatchOutcome aggregates a Store call: every entry is attempted and
// either stored or dropped; failures are isolated per entry.
type BatchOutcome struct {
	Outcomes []StoreOutcome
	Stored   int
	Dropped  int
}

// Repository stores and retrieves entries in an object store.
type Repository struct {
	store     objstore.ObjectStore
	bucket    string
	directory string
	settings  Settings
	stats     *DailyStatsService
	limiter   *rate.Limiter

	// Per-instance monitored-tags cache, lazily loaded on first access
	// and dropped by Terminate at the end of a unit of work.
	tagsMu sync.Mutex
	tags   tagCache
}

// NewRepository builds a repository rooted at directory inside bucket.
// The stats aggregator may be nil to disable counting.
func NewRepository(store objstore.ObjectStore, bucket, directory string, stats *DailyStatsService, settings Settings) *Repository {
	settings.normalize()
	r := &Repository{
		store:     store,
		bucket:    bucket,
		directory: strings.Trim(directory, "/"),
		settings:  settings,
		stats:     stats,
	}
	if settings.WriteRate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(settings.WriteRate), settings.WriteBurst)
	}
	return r
}

func (r *Repository) entryKey(entryType entry.Type, date, batchID, uuid string) string {
	if batchID == "" {
		batchID = unbatched
	}
	return keyJoin(r.directory, entryType, date, batchID, uuid+".json")
}

// Store persists a batch of entries. Writes are issued concurrently up
// to the configured parallelism and the call returns once all of them
// have completed or individually failed. Store never returns an error:
// the producing application's request path must not be affected by
// storage backend outages, so failed entries are logged and dropped.
func (r *Repository) Store(ctx context.Context, entries []*entry.Entry) *BatchOutcome {
	outcome := &BatchOutcome{Outcomes: make([]StoreOutcome, len(entries))}
	if len(entries) == 0 {
		return outcome
	}

	sem := make(chan struct{}, r.settings.StoreConcurrency)
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e *entry.Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcome.Outcomes[i] = r.storeOne(ctx, e)
		}(i, e)
	}
	wg.Wait()

	for _, o := range outcome.Outcomes {
		if o.Err != nil {
			outcome.Dropped++
		} else {
			outcome.Stored++
		}
	}
	metricEntriesStored.Add(outcome.Stored)
	metricEntriesDropped.Add(outcome.Dropped)
	return outcome
}

func (r *Repository) storeOne(ctx context.Context, e *entry.Entry) StoreOutcome {
	out := StoreOutcome{UUID: e.UUID, Type: e.Type}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			out.Err = err
			log.Printf("storage: dropped entry waiting for write limiter type=%s uuid=%s: %v", e.Type, e.UUID, err)
			return out
		}
	}

	data, err := encodeEntry(e)
	if err != nil {
		out.Err = err
		log.Printf("storage: failed to encode entry type=%s uuid=%s: %v", e.Type, e.UUID, err)
		return out
	}

	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	key := r.entryKey(e.Type, recordedAt.UTC().Format(dateLayout), e.BatchID, e.UUID)

	putCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
	defer cancel()
	if err := r.store.PutObject(putCtx, r.bucket, key, data, "application/json"); err != nil {
		out.Err = err
		log.Printf("storage: failed to store entry op=put key=%s type=%s uuid=%s: %v", key, e.Type, e.UUID, err)
		return out
	}

	// Counter updates ride along with the write; a failed increment
	// must not undo a stored entry.
	if r.stats != nil {
		if err := r.stats.Increment(ctx, e.Type); err != nil {
			log.Printf("storage: failed to increment daily stats type=%s: %v", e.Type, err)
		}
	}
	return out
}

// Update is accepted for contract compatibility and does nothing: the
// object-store backend is append-only and does not support field-level
// mutation of stored entries.
func (r *Repository) Update(ctx context.Context, updates []*entry.Update) error {
	_ = ctx
	_ = updates
	return nil
}

func keyJoin(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return path.Join(clean...)
}

func isNotFound(err error) bool {
	var coded *objstore.Error
	if errors.As(err, &coded) {
		return coded.Code == objstore.CodeObjectNotFound
	}
	return false
}
