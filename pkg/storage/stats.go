package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/periscope/recorder-core/internal/objstore"
	"github.com/periscope/recorder-core/pkg/entry"
)

// DefaultCounters are the per-day counter fields tracked when no
// override is configured.
var DefaultCounters = []string{"requests", "jobs", "exceptions", "mails", "queries"}

// counterFields maps an entry type to the stats field it increments.
var counterFields = map[string]string{
	entry.TypeRequest:   "requests",
	entry.TypeJob:       "jobs",
	entry.TypeException: "exceptions",
	entry.TypeMail:      "mails",
	entry.TypeQuery:     "queries",
}

// DailyStats is one calendar date's worth of activity counters. It
// serializes flat: {"date": "...", "requests": N, ...}.
type DailyStats struct {
	Date     string
	Counters map[string]int64
}

func (d *DailyStats) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Counters)+1)
	flat["date"] = d.Date
	for field, n := range d.Counters {
		flat[field] = n
	}
	return json.Marshal(flat)
}

func (d *DailyStats) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	d.Counters = map[string]int64{}
	for field, raw := range flat {
		if field == "date" {
			_ = json.Unmarshal(raw, &d.Date)
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil {
			d.Counters[field] = n
		}
	}
	return nil
}

// Fields returns the counter field names in stable order.
func (d *DailyStats) Fields() []string {
	fields := make([]string, 0, len(d.Counters))
	for field := range d.Counters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// DailyStatsService aggregates per-day activity counters, one small
// JSON object per calendar date. Increments are read-modify-write with
// no locking: two concurrent increments for the same date can lose one
// side's update. The counters are approximate operational signals, not
// audit-grade metrics.
type DailyStatsService struct {
	store     objstore.ObjectStore
	bucket    string
	directory string
	counters  []string
	opTimeout time.Duration
}

// NewDailyStatsService builds the aggregator. An empty counters list
// selects DefaultCounters.
func NewDailyStatsService(store objstore.ObjectStore, bucket, directory string, counters []string, opTimeout time.Duration) *DailyStatsService {
	if len(counters) == 0 {
		counters = DefaultCounters
	}
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &DailyStatsService{
		store:     store,
		bucket:    bucket,
		directory: directory,
		counters:  counters,
		opTimeout: opTimeout,
	}
}

func (s *DailyStatsService) statsKey(date string) string {
	return keyJoin(s.directory, "stats", date+".json")
}

func (s *DailyStatsService) zero(date string) *DailyStats {
	stats := &DailyStats{Date: date, Counters: make(map[string]int64, len(s.counters))}
	for _, field := range s.counters {
		stats.Counters[field] = 0
	}
	return stats
}

func (s *DailyStatsService) recognized(field string) bool {
	for _, f := range s.counters {
		if f == field {
			return true
		}
	}
	return false
}

// Increment bumps today's counter for the given entry type. Types
// without a recognized counter field are ignored.
func (s *DailyStatsService) Increment(ctx context.Context, entryType string) error {
	field, ok := counterFields[entryType]
	if !ok || !s.recognized(field) {
		return nil
	}

	date := time.Now().UTC().Format("2006-01-02")
	stats := s.load(ctx, date)
	stats.Counters[field]++

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats for %s: %w", date, err)
	}

	putCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.store.PutObject(putCtx, s.bucket, s.statsKey(date), data, "application/json")
}

// GetStats returns the persisted record for the date, today when the
// date is empty. A date with no activity yields an all-zero record; a
// backend failure degrades to the same zero record rather than failing.
func (s *DailyStatsService) GetStats(ctx context.Context, date string) *DailyStats {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	return s.load(ctx, date)
}

func (s *DailyStatsService) load(ctx context.Context, date string) *DailyStats {
	stats := s.zero(date)

	getCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := s.store.GetObject(getCtx, s.bucket, s.statsKey(date))
	if err != nil {
		if !isNotFound(err) {
			log.Printf("storage: failed to load daily stats date=%s: %v", date, err)
		}
		return stats
	}

	var loaded DailyStats
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Printf("storage: corrupt daily stats object date=%s: %v", date, err)
		return stats
	}
	for field, n := range loaded.Counters {
		if s.recognized(field) {
			stats.Counters[field] = n
		}
	}
	if loaded.Date != "" {
		stats.Date = loaded.Date
	}
	return stats
}
