package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"macsleuth/internal/domain"
)

// JSONCodec handles the JSON state document
type JSONCodec struct {
	now func() time.Time
}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{now: time.Now}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// jsonDocument is the versioned envelope around a snapshot
type jsonDocument struct {
	Version      int                               `json:"version"`
	SavedAt      time.Time                         `json:"saved_at"`
	Fingerprints map[string]domain.Fingerprint     `json:"fingerprints"`
	Presence     map[string][]domain.PresenceEvent `json:"presence"`
	Ledger       []domain.LedgerEntry              `json:"ledger"`
}

// Parse decodes a state document. Missing sections decode as empty.
func (c *JSONCodec) Parse(r io.Reader) (*domain.Snapshot, error) {
	var doc jsonDocument
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if doc.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	snap := domain.NewSnapshot()
	if doc.Fingerprints != nil {
		snap.Fingerprints = doc.Fingerprints
	}
	if doc.Presence != nil {
		snap.Presence = doc.Presence
	}
	if doc.Ledger != nil {
		snap.Ledger = doc.Ledger
	}

	return snap, nil
}

// Export encodes a snapshot as an indented state document
func (c *JSONCodec) Export(snap *domain.Snapshot, w io.Writer) error {
	if snap == nil {
		snap = domain.NewSnapshot()
	}

	doc := jsonDocument{
		Version:      StateVersion,
		SavedAt:      c.now().UTC(),
		Fingerprints: snap.Fingerprints,
		Presence:     snap.Presence,
		Ledger:       snap.Ledger,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
