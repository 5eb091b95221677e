package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macsleuth/internal/adapter"
	"macsleuth/internal/correlation"
	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
	"macsleuth/internal/repository"
)

// Gatherer collects one cycle's worth of input from the collaborators
type Gatherer interface {
	Gather(ctx context.Context, people []loader.Person) adapter.Gathered
}

// CycleReport is the outcome of one learning cycle
type CycleReport struct {
	correlation.CycleResult
	StartedAt    time.Time     `json:"started_at"`
	Took         time.Duration `json:"took"`
	SourceErrors []string      `json:"source_errors,omitempty"`
}

// LearningOptions configures a LearningService
type LearningOptions struct {
	Engine     correlation.Config
	HistoryCap int
	People     []loader.Person
	// Journal is optional; nil disables suggestion history
	Journal repository.SuggestionJournal
	// EventBus is optional
	EventBus *EventBus
}

// LearningService owns the engine state and runs learning cycles one at a time
type LearningService struct {
	mu       sync.Mutex
	engine   *correlation.Engine
	gatherer Gatherer
	store    repository.StateStore
	journal  repository.SuggestionJournal
	eventBus *EventBus
	people   []loader.Person
	log      zerolog.Logger
	now      func() time.Time
}

// NewLearningService loads persisted state and builds the engine. A corrupt
// state document is logged and replaced by empty state; any other load
// failure is returned.
func NewLearningService(ctx context.Context, gatherer Gatherer, store repository.StateStore, opts LearningOptions, log zerolog.Logger) (*LearningService, error) {
	log = log.With().Str("component", "learning").Logger()

	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, repository.ErrCorruptState):
		log.Warn().Err(err).Msg("Persisted state unreadable, starting empty")
		snap = domain.NewSnapshot()
	case err != nil:
		return nil, fmt.Errorf("load state: %w", err)
	}

	state := correlation.RestoreState(snap, opts.HistoryCap)
	log.Info().
		Int("fingerprints", state.Fingerprints.Len()).
		Int("ledger", state.Ledger.Len()).
		Int("people", len(opts.People)).
		Msg("State loaded")

	eventBus := opts.EventBus
	if eventBus == nil {
		eventBus = NewEventBus()
	}

	return &LearningService{
		engine:   correlation.NewEngine(state, opts.Engine, log),
		gatherer: gatherer,
		store:    store,
		journal:  opts.Journal,
		eventBus: eventBus,
		people:   opts.People,
		log:      log,
		now:      time.Now,
	}, nil
}

// EventBus returns the bus the service publishes on
func (s *LearningService) EventBus() *EventBus {
	return s.eventBus
}

// RunCycle gathers input, runs the engine and persists the result. Source
// failures are reported in the CycleReport and do not fail the cycle;
// failing to save state does.
func (s *LearningService) RunCycle(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	report := CycleReport{StartedAt: start}

	gathered := s.gatherer.Gather(ctx, s.people)
	for _, err := range gathered.Errors {
		report.SourceErrors = append(report.SourceErrors, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	report.CycleResult = s.engine.RunCycle(correlation.CycleInput{
		Now:            start,
		Observations:   gathered.Observations,
		PresenceEvents: gathered.PresenceEvents,
		ReportedHome:   gathered.ReportedHome,
		Identities:     (&loader.PeopleYAML{People: s.people}).Identities(),
	})

	if err := s.store.Save(ctx, s.engine.State().Snapshot()); err != nil {
		return report, fmt.Errorf("save state: %w", err)
	}

	if s.journal != nil && len(report.Suggestions) > 0 {
		if err := s.journal.Append(ctx, report.Suggestions); err != nil {
			// State already holds the ledger entries; losing history is not fatal
			s.log.Error().Err(err).Int("suggestions", len(report.Suggestions)).Msg("Failed to journal suggestions")
		}
	}

	for _, sg := range report.Suggestions {
		s.eventBus.Publish(Event{Type: EventSuggestion, Payload: sg})
	}

	report.Took = s.now().Sub(start)
	s.eventBus.Publish(Event{Type: EventCycleComplete, Payload: report})

	s.log.Info().
		Int("ingested", report.Ingested).
		Int("unknown", report.Unknown).
		Strs("missing", report.Missing).
		Int("suggestions", len(report.Suggestions)).
		Int("rejected", len(report.Rejected)).
		Int("source_errors", len(report.SourceErrors)).
		Dur("took", report.Took).
		Msg("Learning cycle complete")

	return report, nil
}

// SetIdentities replaces the people mapping used from the next cycle on
func (s *LearningService) SetIdentities(people []loader.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.people = append([]loader.Person(nil), people...)
	s.eventBus.Publish(Event{Type: EventIdentitiesReset, Payload: len(people)})
	s.log.Info().Int("people", len(people)).Msg("Identity mapping reloaded")
}

// People returns the current people mapping
func (s *LearningService) People() []loader.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]loader.Person(nil), s.people...)
}

// Ledger returns the suggestion ledger, sorted by person then identifier
func (s *LearningService) Ledger() []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State().Ledger.Entries()
}

// ClearLedger makes pairs eligible for suggestion again. An empty identifier
// clears every entry for the person. Returns the number of entries removed;
// state is only saved when something changed.
func (s *LearningService) ClearLedger(ctx context.Context, identifier, person string) (int, error) {
	if person == "" {
		return 0, errors.New("person is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := s.engine.State().Ledger
	var removed int
	if identifier == "" {
		removed = ledger.ClearPerson(person)
	} else if ledger.Clear(domain.NormalizeMAC(identifier), person) {
		removed = 1
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.store.Save(ctx, s.engine.State().Snapshot()); err != nil {
		return removed, fmt.Errorf("save state: %w", err)
	}

	s.eventBus.Publish(Event{
		Type:    EventLedgerCleared,
		Payload: map[string]any{"identifier": identifier, "person": person, "removed": removed},
	})
	s.log.Info().Str("identifier", identifier).Str("person", person).Int("removed", removed).Msg("Ledger cleared")

	return removed, nil
}

// Fingerprint returns the accumulated fingerprint for an identifier
func (s *LearningService) Fingerprint(identifier string) (domain.Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State().Fingerprints.Get(domain.NormalizeMAC(identifier))
}

// Snapshot returns a copy of the full engine state
func (s *LearningService) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State().Snapshot()
}

// MaxSuggestionHours bounds the look-back accepted by Suggestions callers,
// about ten years
const MaxSuggestionHours = 24 * 365 * 10

// Suggestions returns journaled suggestions generated within the last window
func (s *LearningService) Suggestions(ctx context.Context, window time.Duration) ([]domain.Suggestion, error) {
	if s.journal == nil {
		return nil, errors.New("no suggestion journal configured")
	}
	return s.journal.Recent(ctx, s.now().Add(-window))
}
