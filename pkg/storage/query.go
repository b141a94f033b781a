package storage

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/periscope/recorder-core/pkg/entry"
)

// Get retrieves entries matching the options, newest first. The scan
// covers a bounded window of recent calendar dates; anything older is
// out of reach of queries (though still present until pruned). A date
// prefix whose listing or reads fail is logged and skipped, so a
// backend hiccup degrades the query to partial results instead of
// failing it outright. The full window is always scanned before
// sorting and truncating, so within the window results are complete
// regardless of backend listing order.
func (r *Repository) Get(ctx context.Context, entryType entry.Type, opts entry.QueryOptions) ([]*entry.Result, error) {
	opts.Normalize()

	days := r.settings.ScanDays
	if opts.BatchID != "" {
		days = r.settings.BatchScanDays
	}

	metricQueryScans.Inc()

	var results []*entry.Result
	if entryType != "" {
		results = r.scanTyped(ctx, entryType, days, &opts)
	} else {
		results = r.scanAll(ctx, days, &opts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SortKey() > results[j].SortKey()
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// scanTyped lists one date prefix at a time under the type's directory,
// narrowed to the batch directory when the options name a batch.
func (r *Repository) scanTyped(ctx context.Context, entryType entry.Type, days int, opts *entry.QueryOptions) []*entry.Result {
	var results []*entry.Result
	now := time.Now().UTC()

	for i := 0; i < days; i++ {
		if ctx.Err() != nil {
			return results
		}
		date := now.AddDate(0, 0, -i).Format(dateLayout)
		prefix := keyJoin(r.directory, entryType, date)
		if opts.BatchID != "" {
			prefix = keyJoin(prefix, opts.BatchID)
		}

		keys, err := r.listPrefix(ctx, prefix)
		if err != nil {
			metricScanFailures.Inc()
			log.Printf("storage: failed to list entries date=%s type=%s: %v", date, entryType, err)
			continue
		}
		results = append(results, r.collect(ctx, keys, opts)...)
	}
	return results
}

// scanAll handles untyped queries with a single listing of the whole
// root, filtered down to entry objects within the date window. The
// layout partitions by type before date, so the window cannot be
// expressed as one prefix per day here.
func (r *Repository) scanAll(ctx context.Context, days int, opts *entry.QueryOptions) []*entry.Result {
	window := r.dateWindow(days)

	keys, err := r.listPrefix(ctx, r.directory)
	if err != nil {
		metricScanFailures.Inc()
		log.Printf("storage: failed to list entries under root: %v", err)
		return nil
	}

	var candidates []string
	for _, key := range keys {
		entryType, date, ok := r.splitEntryKey(key)
		if !ok || entryType == "" {
			continue
		}
		if window[date] {
			candidates = append(candidates, key)
		}
	}
	return r.collect(ctx, candidates, opts)
}

// collect fetches and deserializes candidate objects, keeping the ones
// that match every set filter. A failed read skips that object only.
func (r *Repository) collect(ctx context.Context, keys []string, opts *entry.QueryOptions) []*entry.Result {
	var results []*entry.Result
	for _, key := range keys {
		if ctx.Err() != nil {
			return results
		}
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		res := r.fetchResult(ctx, key)
		if res == nil {
			continue
		}
		if opts.Matches(res) {
			results = append(results, res)
		}
	}
	return results
}

// Find locates a single entry by uuid, scanning the store for a key
// with the uuid's file suffix. Unlike Get, the whole root is examined:
// a direct lookup should not miss an entry merely because it is older
// than the query window. A missing uuid returns ErrEntryNotFound.
func (r *Repository) Find(ctx context.Context, uuid string) (*entry.Result, error) {
	keys, err := r.listPrefix(ctx, r.directory)
	if err != nil {
		log.Printf("storage: failed to list entries for find uuid=%s: %v", uuid, err)
		return nil, ErrEntryNotFound
	}

	suffix := "/" + uuid + ".json"
	for _, key := range keys {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		if _, _, ok := r.splitEntryKey(key); !ok {
			continue
		}
		if res := r.fetchResult(ctx, key); res != nil {
			return res, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *Repository) fetchResult(ctx context.Context, key string) *entry.Result {
	getCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
	defer cancel()
	data, err := r.store.GetObject(getCtx, r.bucket, key)
	if err != nil {
		metricScanFailures.Inc()
		log.Printf("storage: failed to read entry op=get key=%s: %v", key, err)
		return nil
	}
	return decodeResult(data)
}

func (r *Repository) listPrefix(ctx context.Context, prefix string) ([]string, error) {
	listCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
	defer cancel()
	return r.store.ListPrefix(listCtx, r.bucket, prefix)
}

func (r *Repository) dateWindow(days int) map[string]bool {
	now := time.Now().UTC()
	window := make(map[string]bool, days)
	for i := 0; i < days; i++ {
		window[now.AddDate(0, 0, -i).Format(dateLayout)] = true
	}
	return window
}

// splitEntryKey breaks a key relative to the root into its type and
// date segments. Keys outside the entry layout (the stats directory,
// the monitored-tags file) report ok=false.
func (r *Repository) splitEntryKey(key string) (entryType, date string, ok bool) {
	rel := strings.TrimPrefix(key, r.directory+"/")
	segments := strings.Split(rel, "/")
	if len(segments) < 4 {
		return "", "", false
	}
	if segments[0] == statsDirectory || segments[0] == monitoredTagsFile {
		return "", "", false
	}
	if _, err := time.Parse(dateLayout, segments[1]); err != nil {
		return "", "", false
	}
	return segments[0], segments[1], true
}
