// Package correlation implements the device-identity correlation engine.
//
// The engine ingests scanner observations and presence transitions, keeps an
// evolving fingerprint per identifier and suggests that an unknown identifier
// probably belongs to a person whose known devices have gone quiet while the
// presence feed reports them home.
//
// Nothing in this package performs I/O or starts goroutines. A State must be
// driven by a single writer; callers running cycles concurrently serialize
// them behind one lock.
package correlation

import "macsleuth/internal/domain"

// FingerprintStore maps identifiers to their accumulated evidence
type FingerprintStore struct {
	fingerprints map[string]domain.Fingerprint
}

// NewFingerprintStore creates an empty store
func NewFingerprintStore() *FingerprintStore {
	return &FingerprintStore{
		fingerprints: make(map[string]domain.Fingerprint),
	}
}

// Update merges the observation into the fingerprint for identifier,
// creating it on first sight. Panics on an empty identifier.
func (s *FingerprintStore) Update(identifier string, obs domain.Observation) domain.Fingerprint {
	if identifier == "" {
		panic("correlation: FingerprintStore.Update called with empty identifier")
	}

	fp, ok := s.fingerprints[identifier]
	if !ok {
		fp = domain.NewFingerprint(identifier, obs.ObservedAt)
	}
	fp.Merge(obs)
	s.fingerprints[identifier] = fp

	return fp.Clone()
}

// Get returns a copy of the fingerprint for identifier
func (s *FingerprintStore) Get(identifier string) (domain.Fingerprint, bool) {
	fp, ok := s.fingerprints[identifier]
	if !ok {
		return domain.Fingerprint{}, false
	}
	return fp.Clone(), true
}

// AllFor returns the fingerprints for the given identifiers, skipping unknown ones
func (s *FingerprintStore) AllFor(identifiers []string) map[string]domain.Fingerprint {
	result := make(map[string]domain.Fingerprint, len(identifiers))
	for _, id := range identifiers {
		if fp, ok := s.fingerprints[id]; ok {
			result[id] = fp.Clone()
		}
	}
	return result
}

// Len returns the number of stored fingerprints
func (s *FingerprintStore) Len() int {
	return len(s.fingerprints)
}

func (s *FingerprintStore) snapshot() map[string]domain.Fingerprint {
	out := make(map[string]domain.Fingerprint, len(s.fingerprints))
	for id, fp := range s.fingerprints {
		out[id] = fp.Clone()
	}
	return out
}

func (s *FingerprintStore) restore(fps map[string]domain.Fingerprint) {
	s.fingerprints = make(map[string]domain.Fingerprint, len(fps))
	for id, fp := range fps {
		if id == "" {
			continue
		}
		fp = fp.Clone()
		fp.Identifier = id
		fp.Normalize()
		s.fingerprints[id] = fp
	}
}
