package correlation

import (
	"sort"
	"time"

	"macsleuth/internal/domain"
)

type ledgerKey struct {
	identifier string
	person     string
}

// SuggestionLedger remembers which (identifier, person) pairs were already
// suggested so the engine does not repeat itself every cycle.
type SuggestionLedger struct {
	entries map[ledgerKey]time.Time
}

// NewSuggestionLedger creates an empty ledger
func NewSuggestionLedger() *SuggestionLedger {
	return &SuggestionLedger{
		entries: make(map[ledgerKey]time.Time),
	}
}

// Seen returns true if the pair has ever been recorded
func (l *SuggestionLedger) Seen(identifier, person string) bool {
	_, ok := l.entries[ledgerKey{identifier, person}]
	return ok
}

// LastSuggested returns when the pair was last recorded
func (l *SuggestionLedger) LastSuggested(identifier, person string) (time.Time, bool) {
	at, ok := l.entries[ledgerKey{identifier, person}]
	return at, ok
}

// Record stores the suggestion time for a pair. Idempotent; an older
// timestamp never replaces a newer one.
func (l *SuggestionLedger) Record(identifier, person string, at time.Time) {
	key := ledgerKey{identifier, person}
	if prev, ok := l.entries[key]; ok && prev.After(at) {
		return
	}
	l.entries[key] = at
}

// Suppressed reports whether a new suggestion for the pair must be dropped.
// A zero cooldown means a recorded pair is never suggested again.
func (l *SuggestionLedger) Suppressed(identifier, person string, now time.Time, cooldown time.Duration) bool {
	at, ok := l.LastSuggested(identifier, person)
	if !ok {
		return false
	}
	if cooldown <= 0 {
		return true
	}
	return now.Sub(at) < cooldown
}

// Clear forgets a pair so the engine may suggest it again
func (l *SuggestionLedger) Clear(identifier, person string) bool {
	key := ledgerKey{identifier, person}
	if _, ok := l.entries[key]; !ok {
		return false
	}
	delete(l.entries, key)
	return true
}

// ClearPerson forgets every pair for a person and returns how many were removed
func (l *SuggestionLedger) ClearPerson(person string) int {
	removed := 0
	for key := range l.entries {
		if key.person == person {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of recorded pairs
func (l *SuggestionLedger) Len() int {
	return len(l.entries)
}

// Entries returns all entries sorted by person then identifier
func (l *SuggestionLedger) Entries() []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(l.entries))
	for key, at := range l.entries {
		out = append(out, domain.LedgerEntry{
			Identifier:    key.identifier,
			Person:        key.person,
			LastSuggested: at,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Person != out[j].Person {
			return out[i].Person < out[j].Person
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

func (l *SuggestionLedger) restore(entries []domain.LedgerEntry) {
	l.entries = make(map[ledgerKey]time.Time, len(entries))
	for _, e := range entries {
		if e.Identifier == "" || e.Person == "" {
			continue
		}
		l.Record(e.Identifier, e.Person, e.LastSuggested)
	}
}
