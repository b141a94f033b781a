package storage

import (
	"context"
	"encoding/json"
)

// tagCache holds the per-instance monitored-tags state: loaded once on
// first access and kept for the instance's lifetime until Terminate
// drops it. Concurrent mutators of the persisted file race with
// last-writer-wins semantics; tag changes are rare and operator-driven.
type tagCache struct {
	loaded bool
	tags   []string
}

func (r *Repository) tagsKey() string {
	return keyJoin(r.directory, monitoredTagsFile)
}

// loadTagsLocked populates the cache from the persisted file if it has
// not been loaded yet. Callers must hold tagsMu.
func (r *Repository) loadTagsLocked(ctx context.Context) error {
	if r.tags.loaded {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
	defer cancel()

	exists, err := r.store.ObjectExists(opCtx, r.bucket, r.tagsKey())
	if err != nil {
		return err
	}

	tags := []string{}
	if exists {
		data, err := r.store.GetObject(opCtx, r.bucket, r.tagsKey())
		if err != nil {
			return err
		}
		// A corrupt file reads as an empty set rather than an error.
		_ = json.Unmarshal(data, &tags)
	}
	r.tags = tagCache{loaded: true, tags: tags}
	return nil
}

func (r *Repository) persistTagsLocked(ctx context.Context) error {
	data, err := json.Marshal(r.tags.tags)
	if err != nil {
		return err
	}
	putCtx, cancel := context.WithTimeout(ctx, r.settings.OpTimeout)
	defer cancel()
	return r.store.PutObject(putCtx, r.bucket, r.tagsKey(), data, "application/json")
}

// Monitoring returns the current set of monitored tags.
func (r *Repository) Monitoring(ctx context.Context) ([]string, error) {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()
	if err := r.loadTagsLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]string, len(r.tags.tags))
	copy(out, r.tags.tags)
	return out, nil
}

// Monitor unions the given tags into the monitored set and persists the
// full set. Monitoring an already-monitored tag is a no-op.
func (r *Repository) Monitor(ctx context.Context, tags []string) error {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()
	if err := r.loadTagsLocked(ctx); err != nil {
		return err
	}
	for _, tag := range tags {
		if !hasTag(r.tags.tags, tag) {
			r.tags.tags = append(r.tags.tags, tag)
		}
	}
	return r.persistTagsLocked(ctx)
}

// StopMonitoring removes the given tags from the monitored set and
// persists the remainder.
func (r *Repository) StopMonitoring(ctx context.Context, tags []string) error {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()
	if err := r.loadTagsLocked(ctx); err != nil {
		return err
	}
	kept := r.tags.tags[:0]
	for _, existing := range r.tags.tags {
		if !hasTag(tags, existing) {
			kept = append(kept, existing)
		}
	}
	r.tags.tags = kept
	return r.persistTagsLocked(ctx)
}

// IsMonitoring reports whether any of the given tags is monitored.
func (r *Repository) IsMonitoring(ctx context.Context, tags []string) (bool, error) {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()
	if err := r.loadTagsLocked(ctx); err != nil {
		return false, err
	}
	for _, tag := range tags {
		if hasTag(r.tags.tags, tag) {
			return true, nil
		}
	}
	return false, nil
}

// Terminate drops the in-memory monitored-tags cache at the end of a
// unit of work, so stale tag state cannot leak into the next one. The
// next access reloads from the persisted file.
func (r *Repository) Terminate() {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()
	r.tags = tagCache{}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
