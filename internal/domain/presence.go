package domain

import (
	"errors"
	"time"
)

// TransitionKind is the direction of a presence change
type TransitionKind string

const (
	TransitionHome TransitionKind = "home" // Person became home
	TransitionAway TransitionKind = "away" // Person left
)

// Valid returns true for known transition kinds
func (k TransitionKind) Valid() bool {
	return k == TransitionHome || k == TransitionAway
}

// PresenceEvent records a home/away transition reported by a presence feed
type PresenceEvent struct {
	Person string         `json:"person"`
	At     time.Time      `json:"at"`
	Kind   TransitionKind `json:"kind"`
	Source string         `json:"source,omitempty"` // e.g. "homeassistant", "presence-flag"
}

// Validate checks the required fields
func (e PresenceEvent) Validate() error {
	switch {
	case e.Person == "":
		return errors.Join(ErrMalformed, errors.New("presence event has no person"))
	case e.At.IsZero():
		return errors.Join(ErrMalformed, errors.New("presence event for "+e.Person+" has no timestamp"))
	case !e.Kind.Valid():
		return errors.Join(ErrMalformed, errors.New("presence event for "+e.Person+" has unknown kind "+string(e.Kind)))
	}
	return nil
}

// PersonIdentity is the operator-maintained mapping of a person to the
// identifiers known to be theirs. Read-only to the engine.
type PersonIdentity struct {
	Name        string   `json:"name" yaml:"name"`
	Identifiers []string `json:"identifiers" yaml:"identifiers"`
}
