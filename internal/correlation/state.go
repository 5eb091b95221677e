package correlation

import "macsleuth/internal/domain"

// State owns the three stores the engine mutates. It is the unit handed to
// persistence for load and save.
type State struct {
	Fingerprints *FingerprintStore
	Presence     *PresenceHistory
	Ledger       *SuggestionLedger
}

// NewState creates empty stores. historyCap <= 0 selects DefaultHistoryCap.
func NewState(historyCap int) *State {
	return &State{
		Fingerprints: NewFingerprintStore(),
		Presence:     NewPresenceHistory(historyCap),
		Ledger:       NewSuggestionLedger(),
	}
}

// RestoreState rebuilds stores from a persisted snapshot. Entries missing
// required fields are dropped; a nil snapshot yields empty state.
func RestoreState(snap *domain.Snapshot, historyCap int) *State {
	s := NewState(historyCap)
	if snap == nil {
		return s
	}
	s.Fingerprints.restore(snap.Fingerprints)
	s.Presence.restore(snap.Presence)
	s.Ledger.restore(snap.Ledger)
	return s
}

// Snapshot returns a deep copy of the state suitable for persistence
func (s *State) Snapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Fingerprints: s.Fingerprints.snapshot(),
		Presence:     s.Presence.snapshot(),
		Ledger:       s.Ledger.Entries(),
	}
}
