package storage

import (
	"context"
	"testing"
	"time"

	"github.com/periscope/recorder-core/pkg/entry"
)

func entryAt(t *testing.T, repo *Repository, recordedAt time.Time) *entry.Entry {
	t.Helper()
	e := entry.New(entry.TypeLog, map[string]any{"level": "info"})
	e.RecordedAt = recordedAt
	outcome := repo.Store(context.Background(), []*entry.Entry{e})
	if outcome.Stored != 1 {
		t.Fatalf("failed to store fixture entry recorded at %v", recordedAt)
	}
	return e
}

func TestPrune_IsPreciseLowerBound(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	cutoff := now.Add(-48 * time.Hour)

	ancient := entryAt(t, repo, now.AddDate(0, 0, -7))
	justBefore := entryAt(t, repo, cutoff.Add(-time.Hour))
	justAfter := entryAt(t, repo, cutoff.Add(time.Hour))
	fresh := entryAt(t, repo, now)

	deleted, err := repo.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	for _, gone := range []*entry.Entry{ancient, justBefore} {
		if _, err := repo.Find(ctx, gone.UUID); err != ErrEntryNotFound {
			t.Errorf("entry recorded at %v should be pruned, Find returned %v", gone.RecordedAt, err)
		}
	}
	for _, kept := range []*entry.Entry{justAfter, fresh} {
		if _, err := repo.Find(ctx, kept.UUID); err != nil {
			t.Errorf("entry recorded at %v should survive prune: %v", kept.RecordedAt, err)
		}
	}
}

func TestPrune_LeavesStatsAndTagsAlone(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	entryAt(t, repo, time.Now().UTC().AddDate(0, 0, -5))
	if err := repo.Monitor(ctx, []string{"keep-me"}); err != nil {
		t.Fatalf("Monitor failed: %v", err)
	}

	if _, err := repo.Prune(ctx, time.Now().UTC()); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	exists, err := store.ObjectExists(ctx, testBucket, "periscope/monitored-tags.json")
	if err != nil || !exists {
		t.Errorf("monitored-tags file should survive prune: exists=%v err=%v", exists, err)
	}
}

func TestClear_RemovesEverything(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	stored := entry.New(entry.TypeRequest, map[string]any{"path": "/"})
	repo.Store(ctx, []*entry.Entry{stored})
	if err := repo.Monitor(ctx, []string{"a"}); err != nil {
		t.Fatalf("Monitor failed: %v", err)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, err := repo.Find(ctx, stored.UUID); err != ErrEntryNotFound {
		t.Errorf("Find after Clear = %v, want ErrEntryNotFound", err)
	}
	keys, err := store.ListPrefix(ctx, testBucket, "periscope")
	if err != nil {
		t.Fatalf("ListPrefix failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected empty store after Clear, got %v", keys)
	}

	results, err := repo.Get(ctx, entry.TypeRequest, entry.QueryOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results after Clear, got %d", len(results))
	}
}
