package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
)

// Registry manages the sources consulted each cycle
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]ObservationSource
	enrichers []Enricher
	presence  map[string]PresenceSource
	log       zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		sources:  make(map[string]ObservationSource),
		presence: make(map[string]PresenceSource),
		log:      log.With().Str("component", "registry").Logger(),
	}
}

// RegisterSource adds an observation source
func (r *Registry) RegisterSource(src ObservationSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := src.Name()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %s already registered", name)
	}
	r.sources[name] = src
	r.log.Info().Str("source", name).Msg("Registered observation source")
	return nil
}

// RegisterEnricher adds an enricher. Enrichers run in registration order.
func (r *Registry) RegisterEnricher(e Enricher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrichers = append(r.enrichers, e)
	r.log.Info().Str("enricher", e.Name()).Msg("Registered enricher")
}

// RegisterPresence adds a presence source
func (r *Registry) RegisterPresence(src PresenceSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := src.Name()
	if _, exists := r.presence[name]; exists {
		return fmt.Errorf("presence source %s already registered", name)
	}
	r.presence[name] = src
	r.log.Info().Str("source", name).Msg("Registered presence source")
	return nil
}

// Names lists every registered source, enricher and presence feed
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.sources {
		names = append(names, name)
	}
	for _, e := range r.enrichers {
		names = append(names, e.Name())
	}
	for name := range r.presence {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Gathered is everything the sources reported for one cycle
type Gathered struct {
	Observations   []domain.Observation
	PresenceEvents []domain.PresenceEvent
	ReportedHome   map[string]bool
	// Errors holds per-source failures; the rest of the data is still usable
	Errors []error
}

// Err joins the per-source failures
func (g *Gathered) Err() error {
	return errors.Join(g.Errors...)
}

// Gather runs all observation sources concurrently, then the enrichers in
// order, then the presence sources.
func (r *Registry) Gather(ctx context.Context, people []loader.Person) Gathered {
	r.mu.RLock()
	sources := make([]ObservationSource, 0, len(r.sources))
	for _, src := range r.sources {
		sources = append(sources, src)
	}
	enrichers := append([]Enricher(nil), r.enrichers...)
	presence := make([]PresenceSource, 0, len(r.presence))
	for _, src := range r.presence {
		presence = append(presence, src)
	}
	r.mu.RUnlock()

	sort.Slice(sources, func(i, j int) bool { return sources[i].Name() < sources[j].Name() })
	sort.Slice(presence, func(i, j int) bool { return presence[i].Name() < presence[j].Name() })

	result := Gathered{ReportedHome: make(map[string]bool)}

	results := make([][]domain.Observation, len(sources))
	errs := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			obs, err := src.Observe(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return
			}
			results[i] = obs
			r.log.Debug().Str("source", src.Name()).Int("observations", len(obs)).
				Dur("took", time.Since(start)).Msg("Source complete")
		}()
	}
	wg.Wait()

	for i := range sources {
		if errs[i] != nil {
			r.log.Warn().Err(errs[i]).Msg("Observation source failed")
			result.Errors = append(result.Errors, errs[i])
			continue
		}
		result.Observations = append(result.Observations, results[i]...)
	}

	for _, e := range enrichers {
		enriched, err := e.Enrich(ctx, result.Observations)
		if err != nil {
			err = fmt.Errorf("%s: %w", e.Name(), err)
			r.log.Warn().Err(err).Msg("Enricher failed")
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Observations = enriched
	}

	for _, src := range presence {
		report, err := src.Presence(ctx, people)
		if err != nil {
			err = fmt.Errorf("%s: %w", src.Name(), err)
			r.log.Warn().Err(err).Msg("Presence source failed")
			result.Errors = append(result.Errors, err)
			continue
		}
		result.PresenceEvents = append(result.PresenceEvents, report.Events...)
		for person, home := range report.Home {
			// Any feed reporting home wins
			result.ReportedHome[person] = result.ReportedHome[person] || home
		}
	}

	return result
}
