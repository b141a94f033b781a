package storage

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"
)

// Prune deletes every entry strictly older than before and returns the
// number of objects removed. Date directories that lie entirely before
// the cutoff are removed with one batch deletion per directory; the
// boundary date (partially old) falls back to per-object inspection of
// each entry's created_at so that nothing at or after the cutoff is
// touched. Prune is a maintenance operation: a failed directory is
// logged and skipped, not fatal.
func (r *Repository) Prune(ctx context.Context, before time.Time) (int, error) {
	keys, err := r.listPrefix(ctx, r.directory)
	if err != nil {
		return 0, err
	}

	wholeDays := map[string]bool{}
	var boundary []string
	for _, key := range keys {
		entryType, date, ok := r.splitEntryKey(key)
		if !ok {
			continue
		}
		dayStart, err := time.Parse(dateLayout, date)
		if err != nil {
			continue
		}
		dayEnd := dayStart.AddDate(0, 0, 1)
		switch {
		case !dayEnd.After(before.UTC()):
			wholeDays[keyJoin(r.directory, entryType, date)] = true
		case dayStart.Before(before.UTC()):
			boundary = append(boundary, key)
		}
	}

	deleted := 0
	prefixes := make([]string, 0, len(wholeDays))
	for prefix := range wholeDays {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		opCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
		n, err := r.store.DeletePrefix(opCtx, r.bucket, prefix)
		cancel()
		deleted += n
		if err != nil {
			log.Printf("storage: failed to prune directory prefix=%s: %v", prefix, err)
			continue
		}
	}

	for _, key := range boundary {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		res := r.fetchResult(ctx, key)
		if res == nil || !res.CreatedAt.Before(before) {
			continue
		}
		opCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
		err := r.store.DeleteObject(opCtx, r.bucket, key)
		cancel()
		if err != nil {
			log.Printf("storage: failed to prune entry key=%s: %v", key, err)
			continue
		}
		deleted++
	}

	metricPrunedObjects.Add(deleted)
	return deleted, nil
}

// Clear deletes everything under the repository's root directory,
// including daily stats and the monitored-tags file. Irreversible.
func (r *Repository) Clear(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
	defer cancel()
	_, err := r.store.DeletePrefix(opCtx, r.bucket, strings.Trim(r.directory, "/"))
	return err
}
