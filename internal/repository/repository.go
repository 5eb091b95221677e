package repository

import (
	"context"
	"errors"
	"time"

	"macsleuth/internal/domain"
)

var (
	// ErrCorruptState marks a persisted state document that could not be parsed
	ErrCorruptState = errors.New("corrupt state")
	// ErrNotFound is returned when a journal entry does not exist
	ErrNotFound = errors.New("not found")
)

// StateStore persists the engine state as a whole
type StateStore interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snap *domain.Snapshot) error
}

// SuggestionJournal records emitted suggestions for later review
type SuggestionJournal interface {
	// Append stores suggestions, assigning IDs to those without one
	Append(ctx context.Context, suggestions []domain.Suggestion) error
	// Recent returns suggestions generated at or after since, newest first
	Recent(ctx context.Context, since time.Time) ([]domain.Suggestion, error)
	// Get returns a single suggestion or ErrNotFound
	Get(ctx context.Context, id string) (*domain.Suggestion, error)
}
