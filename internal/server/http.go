// Package server exposes the recorder's query API over HTTP: entry
// listings, single-entry lookup, daily stats, monitored tags, ingest,
// and maintenance operations.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/periscope/recorder-core/pkg/entry"
	"github.com/periscope/recorder-core/pkg/storage"
)

// Server wires the repository and stats aggregator to HTTP handlers.
type Server struct {
	repo       *storage.Repository
	stats      *storage.DailyStatsService
	defaultTTL int
	pruneDays  int
}

// New creates the HTTP server facade.
func New(repo *storage.Repository, stats *storage.DailyStatsService, defaultTTLSecs, pruneDays int) *Server {
	if defaultTTLSecs <= 0 {
		defaultTTLSecs = 3600
	}
	if pruneDays <= 0 {
		pruneDays = 30
	}
	return &Server{repo: repo, stats: stats, defaultTTL: defaultTTLSecs, pruneDays: pruneDays}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/entries/{type}", s.handleListEntries)
	mux.HandleFunc("GET /api/entries/{uuid}", s.handleShowEntry)
	mux.HandleFunc("DELETE /api/entries", s.handleClear)
	mux.HandleFunc("POST /api/entries/prune", s.handlePrune)
	mux.HandleFunc("GET /api/monitored-tags", s.handleMonitoredTags)
	mux.HandleFunc("POST /api/monitored-tags", s.handleMonitor)
	mux.HandleFunc("POST /api/monitored-tags/delete", s.handleStopMonitoring)

	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return s.cacheControl(mux)
}

// handleStats translates the HTTP stats request into an aggregator
// call: optional date (YYYY-MM-DD, absent means today), all-zero record
// when no data exists.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.stats.GetStats(r.Context(), date))
}

type ingestEntry struct {
	UUID       string         `json:"uuid"`
	BatchID    string         `json:"batch_id"`
	Type       string         `json:"type"`
	FamilyHash string         `json:"family_hash"`
	Content    map[string]any `json:"content"`
	RecordedAt string         `json:"recorded_at"`
	Tags       []string       `json:"tags"`
	Sequence   *int64         `json:"sequence"`
}

// handleIngest accepts a batch of entries from an out-of-process
// producer. The response reports per-entry outcomes; the request
// itself never fails on backend errors.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Entries []ingestEntry `json:"entries"`
	}
	if err := decodeBody(r.Body, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entries := make([]*entry.Entry, 0, len(body.Entries))
	for _, in := range body.Entries {
		if in.Type == "" {
			writeError(w, http.StatusBadRequest, "every entry requires a type")
			return
		}
		e := &entry.Entry{
			UUID:       in.UUID,
			BatchID:    in.BatchID,
			Type:       in.Type,
			FamilyHash: in.FamilyHash,
			Content:    in.Content,
			Tags:       in.Tags,
			Sequence:   in.Sequence,
		}
		if e.UUID == "" {
			e.UUID = uuid.NewString()
		}
		if ts, err := time.Parse(time.RFC3339Nano, in.RecordedAt); err == nil {
			e.RecordedAt = ts
		} else {
			e.RecordedAt = time.Now().UTC()
		}
		entries = append(entries, e)
	}

	outcome := s.repo.Store(r.Context(), entries)
	resp := map[string]any{
		"stored":  outcome.Stored,
		"dropped": outcome.Dropped,
	}
	writeJSON(w, http.StatusAccepted, resp)
}

type listRequest struct {
	BatchID        string   `json:"batch_id"`
	Tag            string   `json:"tag"`
	FamilyHash     string   `json:"family_hash"`
	UUIDs          []string `json:"uuids"`
	BeforeSequence int64    `json:"before_sequence"`
	Limit          int      `json:"limit"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entryType := r.PathValue("type")

	var req listRequest
	if err := decodeBody(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.repo.Get(r.Context(), entryType, entry.QueryOptions{
		BatchID:        req.BatchID,
		Tag:            req.Tag,
		FamilyHash:     req.FamilyHash,
		UUIDs:          req.UUIDs,
		BeforeSequence: req.BeforeSequence,
		Limit:          req.Limit,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "query cancelled")
		return
	}

	entries := make([]apiEntry, 0, len(results))
	for _, res := range results {
		entries = append(entries, toAPIEntry(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleShowEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("uuid")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	res, err := s.repo.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": toAPIEntry(res)})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Clear(r.Context()); err != nil {
		log.Printf("server: clear failed: %v", err)
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePrune deletes entries older than the requested retention in
// days, defaulting to the configured window.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	if err := decodeBody(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	days := req.Days
	if days <= 0 {
		days = s.pruneDays
	}

	before := time.Now().UTC().AddDate(0, 0, -days)
	deleted, err := s.repo.Prune(r.Context(), before)
	if err != nil {
		log.Printf("server: prune failed: %v", err)
		writeError(w, http.StatusInternalServerError, "prune failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleMonitoredTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.repo.Monitoring(r.Context())
	if err != nil {
		log.Printf("server: failed to load monitored tags: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load monitored tags")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	tags, ok := readTags(w, r)
	if !ok {
		return
	}
	if err := s.repo.Monitor(r.Context(), tags); err != nil {
		log.Printf("server: failed to monitor tags: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to persist monitored tags")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	tags, ok := readTags(w, r)
	if !ok {
		return
	}
	if err := s.repo.StopMonitoring(r.Context(), tags); err != nil {
		log.Printf("server: failed to stop monitoring tags: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to persist monitored tags")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readTags(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := decodeBody(r.Body, &req); err != nil || len(req.Tags) == 0 {
		writeError(w, http.StatusBadRequest, "tags are required")
		return nil, false
	}
	return req.Tags, true
}

// apiEntry is the wire shape of a retrieved entry.
type apiEntry struct {
	UUID       string         `json:"uuid"`
	Sequence   *int64         `json:"sequence"`
	BatchID    string         `json:"batch_id"`
	Type       string         `json:"type"`
	FamilyHash string         `json:"family_hash"`
	Content    map[string]any `json:"content"`
	CreatedAt  string         `json:"created_at"`
	Tags       []string       `json:"tags"`
}

func toAPIEntry(res *entry.Result) apiEntry {
	return apiEntry{
		UUID:       res.UUID,
		Sequence:   res.Sequence,
		BatchID:    res.BatchID,
		Type:       res.Type,
		FamilyHash: res.FamilyHash,
		Content:    res.Content,
		CreatedAt:  res.CreatedAt.UTC().Format(time.RFC3339Nano),
		Tags:       res.Tags,
	}
}

func decodeBody(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("server: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
