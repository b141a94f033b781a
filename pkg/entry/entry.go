// Package entry defines the value types recorded by the periscope core:
// incoming entries, their read-side projection, and query options.
package entry

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the kinds of recorded activity.
type Type = string

const (
	TypeRequest       Type = "request"
	TypeQuery         Type = "query"
	TypeCache         Type = "cache"
	TypeJob           Type = "job"
	TypeException     Type = "exception"
	TypeMail          Type = "mail"
	TypeLog           Type = "log"
	TypeEvent         Type = "event"
	TypeGate          Type = "gate"
	TypeModel         Type = "model"
	TypeView          Type = "view"
	TypeCommand       Type = "command"
	TypeSchedule      Type = "schedule"
	TypeRedis         Type = "redis"
	TypeClientRequest Type = "client_request"
	TypeNotification  Type = "notification"
	TypeDump          Type = "dump"
	TypeBatch         Type = "batch"
)

// Types lists every recognized entry type.
func Types() []Type {
	return []Type{
		TypeRequest, TypeQuery, TypeCache, TypeJob, TypeException,
		TypeMail, TypeLog, TypeEvent, TypeGate, TypeModel, TypeView,
		TypeCommand, TypeSchedule, TypeRedis, TypeClientRequest,
		TypeNotification, TypeDump, TypeBatch,
	}
}

// Entry is one recorded unit of observed application activity.
// Entries are written once and never mutated by the storage layer.
// Content is expected to arrive with sensitive values already redacted.
type Entry struct {
	UUID       string
	BatchID    string
	Type       Type
	FamilyHash string
	Content    map[string]any
	RecordedAt time.Time
	Tags       []string
	// Sequence orders entries when the producer assigns one; entries
	// without a sequence fall back to RecordedAt ordering.
	Sequence *int64
}

// New creates an entry of the given type with a fresh UUID and the
// current time as its recording timestamp.
func New(entryType Type, content map[string]any) *Entry {
	return &Entry{
		UUID:       uuid.NewString(),
		Type:       entryType,
		Content:    content,
		RecordedAt: time.Now().UTC(),
	}
}

// WithBatch assigns the batch the entry belongs to.
func (e *Entry) WithBatch(batchID string) *Entry {
	e.BatchID = batchID
	return e
}

// WithFamilyHash assigns the cross-batch correlation key.
func (e *Entry) WithFamilyHash(hash string) *Entry {
	e.FamilyHash = hash
	return e
}

// Tagged appends filter labels to the entry.
func (e *Entry) Tagged(tags ...string) *Entry {
	e.Tags = append(e.Tags, tags...)
	return e
}

// WithSequence assigns an explicit ordering value.
func (e *Entry) WithSequence(seq int64) *Entry {
	e.Sequence = &seq
	return e
}

// HasTag reports whether the entry carries the given tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Result is the read-side projection of a stored entry. It is
// reconstructed from untrusted storage data, so every field tolerates
// absence: missing values are substituted with defaults and a corrupt
// or absent created_at resolves to the read time.
type Result struct {
	UUID       string
	Sequence   *int64
	BatchID    string
	Type       Type
	FamilyHash string
	Content    map[string]any
	CreatedAt  time.Time
	Tags       []string
}

// SortKey returns the value results are ordered by: the sequence when
// present, else the creation timestamp in seconds.
func (r *Result) SortKey() int64 {
	if r.Sequence != nil {
		return *r.Sequence
	}
	return r.CreatedAt.Unix()
}

// Update describes a requested mutation of a stored entry. The object
// store backend is append-only and accepts updates as no-ops; the type
// exists so the repository satisfies the same contract as backends
// that do support updates.
type Update struct {
	UUID    string
	Type    Type
	Changes map[string]any
}
