package adapter

import (
	"context"

	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
)

// ObservationSource produces device observations for one scan cycle
type ObservationSource interface {
	// Name returns the unique identifier for this source
	Name() string

	// Observe scans and returns every device seen
	Observe(ctx context.Context) ([]domain.Observation, error)
}

// Enricher adds evidence to observations gathered by other sources
type Enricher interface {
	Name() string

	// Enrich returns the observations with extra evidence attached.
	// Observations it cannot improve are returned unchanged.
	Enrich(ctx context.Context, observations []domain.Observation) ([]domain.Observation, error)
}

// PresenceReport is what a presence feed knows about the people file
type PresenceReport struct {
	// Events are transitions not reported before
	Events []domain.PresenceEvent
	// Home is the current flag per person; people the feed knows nothing
	// about are absent
	Home map[string]bool
}

// PresenceSource reports who is home
type PresenceSource interface {
	Name() string

	// Presence returns the current state for the given people
	Presence(ctx context.Context, people []loader.Person) (PresenceReport, error)
}
