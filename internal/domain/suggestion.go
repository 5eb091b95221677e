package domain

import "time"

// EvidenceKind names one scoring criterion
type EvidenceKind string

const (
	EvidenceIPv6Suffix      EvidenceKind = "ipv6_suffix"
	EvidenceDeviceType      EvidenceKind = "device_type"
	EvidenceHostnamePattern EvidenceKind = "hostname_pattern"
	EvidenceOpenPorts       EvidenceKind = "open_ports"
)

// Description returns a short human-readable explanation
func (k EvidenceKind) Description() string {
	switch k {
	case EvidenceIPv6Suffix:
		return "IPv6 suffix matches (very reliable)"
	case EvidenceDeviceType:
		return "Device type matches previous devices"
	case EvidenceHostnamePattern:
		return "Hostname pattern matches"
	case EvidenceOpenPorts:
		return "Open ports overlap"
	default:
		return string(k)
	}
}

// EvidenceItem is one matched criterion and the weight it contributed
type EvidenceItem struct {
	Kind   EvidenceKind `json:"kind"`
	Weight float64      `json:"weight"`
}

// Suggestion proposes that an unknown identifier belongs to a person.
// HighConfidence is informational only; suggestions are never auto-applied.
type Suggestion struct {
	ID             string         `json:"id,omitempty"`
	Identifier     string         `json:"identifier"`
	Person         string         `json:"person"`
	Score          float64        `json:"score"`
	HighConfidence bool           `json:"high_confidence"`
	Evidence       []EvidenceItem `json:"evidence"`
	MatchedAgainst string         `json:"matched_against,omitempty"` // Known identifier that scored best
	IP             string         `json:"ip,omitempty"`
	Hostname       string         `json:"hostname,omitempty"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// LedgerEntry remembers when an (identifier, person) pair was last suggested
type LedgerEntry struct {
	Identifier    string    `json:"identifier"`
	Person        string    `json:"person"`
	LastSuggested time.Time `json:"last_suggested"`
}

// Snapshot is the full persisted state of the engine
type Snapshot struct {
	Fingerprints map[string]Fingerprint     `json:"fingerprints"`
	Presence     map[string][]PresenceEvent `json:"presence"`
	Ledger       []LedgerEntry              `json:"ledger"`
}

// NewSnapshot returns an empty snapshot with initialized maps
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Fingerprints: make(map[string]Fingerprint),
		Presence:     make(map[string][]PresenceEvent),
		Ledger:       []LedgerEntry{},
	}
}

// IsEmpty returns true if the snapshot holds no state at all
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (len(s.Fingerprints) == 0 && len(s.Presence) == 0 && len(s.Ledger) == 0)
}
