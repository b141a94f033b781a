package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/periscope/recorder-core/internal/objstore"
	"github.com/periscope/recorder-core/pkg/entry"
)

const testBucket = "periscope-test"

func newTestRepo(t *testing.T) (*Repository, objstore.ObjectStore) {
	t.Helper()
	store := objstore.NewLocalStore(t.TempDir())
	stats := NewDailyStatsService(store, testBucket, "periscope", nil, 5*time.Second)
	repo := NewRepository(store, testBucket, "periscope", stats, Settings{
		OpTimeout: 5 * time.Second,
	})
	return repo, store
}

func queryEntry(seq int64, batchID string) *entry.Entry {
	e := entry.New(entry.TypeQuery, map[string]any{"sql": "select 1"})
	e.WithBatch(batchID).WithSequence(seq)
	return e
}

func TestRepository_StoreAndGetOrdering(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	// Three query entries with sequences 10, 20, 30 across two batches.
	entries := []*entry.Entry{
		queryEntry(10, "batch-1"),
		queryEntry(20, "batch-1"),
		queryEntry(30, "batch-2"),
	}
	outcome := repo.Store(ctx, entries)
	if outcome.Stored != 3 || outcome.Dropped != 0 {
		t.Fatalf("store outcome = %d stored / %d dropped, want 3/0", outcome.Stored, outcome.Dropped)
	}

	results, err := repo.Get(ctx, entry.TypeQuery, entry.QueryOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if *results[0].Sequence != 30 || *results[1].Sequence != 20 {
		t.Errorf("expected sequences [30 20], got [%d %d]", *results[0].Sequence, *results[1].Sequence)
	}
}

func TestRepository_GetHonorsFilters(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	tagged := entry.New(entry.TypeCache, map[string]any{"key": "users:1"}).
		WithBatch("batch-1").WithFamilyHash("fam-1").Tagged("slow").WithSequence(5)
	plain := entry.New(entry.TypeCache, map[string]any{"key": "users:2"}).
		WithBatch("batch-2").WithSequence(6)
	repo.Store(ctx, []*entry.Entry{tagged, plain})

	cases := []struct {
		name string
		opts entry.QueryOptions
		want []string
	}{
		{"by tag", entry.QueryOptions{Tag: "slow"}, []string{tagged.UUID}},
		{"by family hash", entry.QueryOptions{FamilyHash: "fam-1"}, []string{tagged.UUID}},
		{"by batch", entry.QueryOptions{BatchID: "batch-2"}, []string{plain.UUID}},
		{"by uuid set", entry.QueryOptions{UUIDs: []string{plain.UUID}}, []string{plain.UUID}},
		{"before sequence", entry.QueryOptions{BeforeSequence: 6}, []string{tagged.UUID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := repo.Get(ctx, entry.TypeCache, tc.opts)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(results) != len(tc.want) {
				t.Fatalf("expected %d results, got %d", len(tc.want), len(results))
			}
			for i, res := range results {
				if res.UUID != tc.want[i] {
					t.Errorf("result %d uuid = %s, want %s", i, res.UUID, tc.want[i])
				}
			}
		})
	}
}

func TestRepository_GetNeverExceedsLimit(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	var entries []*entry.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, queryEntry(int64(i), "batch-1"))
	}
	repo.Store(ctx, entries)

	results, err := repo.Get(ctx, entry.TypeQuery, entry.QueryOptions{Limit: 4})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(results) != 4 {
		t.Errorf("expected 4 results, got %d", len(results))
	}
}

func TestRepository_GetWithoutTypeScansAllTypes(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	repo.Store(ctx, []*entry.Entry{
		entry.New(entry.TypeRequest, nil).WithSequence(1),
		entry.New(entry.TypeJob, nil).WithSequence(2),
	})

	results, err := repo.Get(ctx, "", entry.QueryOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results across types, got %d", len(results))
	}
}

func TestRepository_FindRoundtrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	stored := entry.New(entry.TypeException, map[string]any{"message": "boom"}).
		WithBatch("batch-1").WithFamilyHash("fam-9").Tagged("critical").WithSequence(7)
	repo.Store(ctx, []*entry.Entry{stored})

	res, err := repo.Find(ctx, stored.UUID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if res.UUID != stored.UUID || res.Type != entry.TypeException || res.BatchID != "batch-1" {
		t.Errorf("unexpected result identity: %+v", res)
	}
	if res.FamilyHash != "fam-9" || len(res.Tags) != 1 || res.Tags[0] != "critical" {
		t.Errorf("unexpected result metadata: %+v", res)
	}
	if res.Sequence == nil || *res.Sequence != 7 {
		t.Errorf("sequence not preserved: %v", res.Sequence)
	}
	if msg, ok := res.Content["message"].(string); !ok || msg != "boom" {
		t.Errorf("content not preserved: %v", res.Content)
	}
}

func TestRepository_FindUnknownUUID(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Find(context.Background(), uuid.NewString())
	if err != ErrEntryNotFound {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestRepository_UpdateIsNoOp(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	stored := entry.New(entry.TypeJob, map[string]any{"status": "pending"})
	repo.Store(ctx, []*entry.Entry{stored})

	err := repo.Update(ctx, []*entry.Update{{UUID: stored.UUID, Changes: map[string]any{"status": "done"}}})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	res, err := repo.Find(ctx, stored.UUID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if status, _ := res.Content["status"].(string); status != "pending" {
		t.Errorf("entry mutated by Update: %v", res.Content)
	}
}

// failingStore turns every write whose key contains the marker into a
// backend failure.
type failingStore struct {
	objstore.ObjectStore
	marker string
}

func (f *failingStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if strings.Contains(key, f.marker) {
		return fmt.Errorf("injected write failure for %s", key)
	}
	return f.ObjectStore.PutObject(ctx, bucket, key, data, contentType)
}

func TestRepository_StoreIsolatesPerEntryFailures(t *testing.T) {
	base := objstore.NewLocalStore(t.TempDir())
	victim := entry.New(entry.TypeLog, map[string]any{"level": "info"})
	survivor := entry.New(entry.TypeLog, map[string]any{"level": "error"})

	store := &failingStore{ObjectStore: base, marker: victim.UUID}
	repo := NewRepository(store, testBucket, "periscope", nil, Settings{OpTimeout: 5 * time.Second})

	outcome := repo.Store(context.Background(), []*entry.Entry{victim, survivor})
	if outcome.Stored != 1 || outcome.Dropped != 1 {
		t.Fatalf("outcome = %d stored / %d dropped, want 1/1", outcome.Stored, outcome.Dropped)
	}
	for _, o := range outcome.Outcomes {
		if o.UUID == victim.UUID && o.Err == nil {
			t.Error("expected the injected failure to be reported for the victim entry")
		}
		if o.UUID == survivor.UUID && o.Err != nil {
			t.Errorf("survivor entry unexpectedly failed: %v", o.Err)
		}
	}

	if _, err := repo.Find(context.Background(), survivor.UUID); err != nil {
		t.Errorf("survivor entry not retrievable: %v", err)
	}
}

func TestRepository_GetSkipsCorruptObjects(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	good := entry.New(entry.TypeQuery, map[string]any{"sql": "select 1"}).WithSequence(1)
	repo.Store(ctx, []*entry.Entry{good})

	// Plant a corrupt object alongside the good one.
	date := time.Now().UTC().Format(dateLayout)
	corruptKey := keyJoin("periscope", entry.TypeQuery, date, "unbatched", uuid.NewString()+".json")
	if err := store.PutObject(ctx, testBucket, corruptKey, []byte("{not json"), "application/json"); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	results, err := repo.Get(ctx, entry.TypeQuery, entry.QueryOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// The corrupt entry decodes to a default result; the good one keeps
	// its fields. Neither aborts the query.
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	found := false
	for _, res := range results {
		if res.UUID == good.UUID {
			found = true
		}
	}
	if !found {
		t.Error("good entry missing from results")
	}
}
