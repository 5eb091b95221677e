package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"macsleuth/internal/codec"
	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
	"macsleuth/internal/service"
)

// Learner is the part of the learning service the API exposes
type Learner interface {
	RunCycle(ctx context.Context) (service.CycleReport, error)
	Suggestions(ctx context.Context, window time.Duration) ([]domain.Suggestion, error)
	Ledger() []domain.LedgerEntry
	ClearLedger(ctx context.Context, identifier, person string) (int, error)
	Fingerprint(identifier string) (domain.Fingerprint, bool)
	Snapshot() *domain.Snapshot
	People() []loader.Person
}

// LearningHandler handles learning API requests
type LearningHandler struct {
	svc Learner
	log zerolog.Logger
}

// NewLearningHandler creates a new learning handler
func NewLearningHandler(svc Learner, log zerolog.Logger) *LearningHandler {
	return &LearningHandler{
		svc: svc,
		log: log.With().Str("component", "api").Logger(),
	}
}

// Register adds the API routes to mux
func (h *LearningHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/cycle", h.RunCycle)
	mux.HandleFunc("GET /api/suggestions", h.ListSuggestions)
	mux.HandleFunc("GET /api/ledger", h.ListLedger)
	mux.HandleFunc("DELETE /api/ledger/{person}", h.ClearLedger)
	mux.HandleFunc("DELETE /api/ledger/{person}/{identifier}", h.ClearLedger)
	mux.HandleFunc("GET /api/fingerprints/{id}", h.GetFingerprint)
	mux.HandleFunc("GET /api/state", h.ExportState)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Health returns service and state counters
func (h *LearningHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Snapshot()
	h.writeJSON(w, map[string]any{
		"status":       "ok",
		"people":       len(h.svc.People()),
		"fingerprints": len(snap.Fingerprints),
		"ledger":       len(snap.Ledger),
	}, http.StatusOK)
}

// RunCycle runs one learning cycle and returns its report
func (h *LearningHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RunCycle(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Cycle failed")
		h.writeError(w, "Cycle failed", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, report, http.StatusOK)
}

// ListSuggestions returns journaled suggestions. format=patch returns the
// people file snippet instead.
func (h *LearningHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, "Invalid hours", fmt.Sprintf("%q is not a positive integer", v), http.StatusBadRequest)
			return
		}
		if n > service.MaxSuggestionHours {
			h.writeError(w, "Invalid hours", fmt.Sprintf("hours must not exceed %d", service.MaxSuggestionHours), http.StatusBadRequest)
			return
		}
		hours = n
	}

	suggestions, err := h.svc.Suggestions(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list suggestions")
		h.writeError(w, "Failed to list suggestions", err.Error(), http.StatusServiceUnavailable)
		return
	}

	if r.URL.Query().Get("format") == "patch" {
		w.Header().Set("Content-Type", "application/x-yaml")
		if err := codec.NewYAMLCodec().ExportPeoplePatch(suggestions, w); err != nil {
			h.log.Error().Err(err).Msg("Failed to export people patch")
		}
		return
	}

	if suggestions == nil {
		suggestions = []domain.Suggestion{}
	}
	h.writeJSON(w, suggestions, http.StatusOK)
}

// ListLedger returns the suggested (identifier, person) pairs
func (h *LearningHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	entries := h.svc.Ledger()
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	h.writeJSON(w, entries, http.StatusOK)
}

// ClearLedger resets one pair, or every pair of a person when no identifier
// is given
func (h *LearningHandler) ClearLedger(w http.ResponseWriter, r *http.Request) {
	person := r.PathValue("person")
	identifier := r.PathValue("identifier")

	removed, err := h.svc.ClearLedger(r.Context(), identifier, person)
	if err != nil {
		h.log.Error().Err(err).Str("person", person).Msg("Failed to clear ledger")
		h.writeError(w, "Failed to clear ledger", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]any{"person": person, "identifier": identifier, "removed": removed}, http.StatusOK)
}

// GetFingerprint returns the evidence profile of one device
func (h *LearningHandler) GetFingerprint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fp, ok := h.svc.Fingerprint(id)
	if !ok {
		h.writeError(w, "Not found", fmt.Sprintf("no fingerprint for %s", id), http.StatusNotFound)
		return
	}

	h.writeJSON(w, fp, http.StatusOK)
}

// ExportState writes the full state document in the requested format
func (h *LearningHandler) ExportState(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	exporter, ok := codec.ForFormat(format)
	if !ok {
		h.writeError(w, "Unsupported format", format, http.StatusBadRequest)
		return
	}

	if exporter.Format() == "yaml" {
		w.Header().Set("Content-Type", "application/x-yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}

	if err := exporter.Export(h.svc.Snapshot(), w); err != nil {
		h.log.Error().Err(err).Str("format", format).Msg("Failed to export state")
	}
}

func (h *LearningHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON")
	}
}

func (h *LearningHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
