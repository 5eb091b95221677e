// Package codec converts engine state and suggestions to and from their
// on-disk and human-facing representations.
package codec

import (
	"errors"
	"io"

	"macsleuth/internal/domain"
)

// StateVersion is the version written into every state document
const StateVersion = 1

// ErrUnsupportedVersion is returned when a state document was written by an
// incompatible version.
var ErrUnsupportedVersion = errors.New("unsupported state document version")

// Importer parses a persisted state document
type Importer interface {
	Parse(r io.Reader) (*domain.Snapshot, error)
	Format() string
}

// Exporter writes a state document
type Exporter interface {
	Export(snap *domain.Snapshot, w io.Writer) error
	Format() string
}

// ForFormat returns the codec registered for a format name
func ForFormat(format string) (interface {
	Importer
	Exporter
}, bool) {
	switch format {
	case "json", "":
		return NewJSONCodec(), true
	case "yaml", "yml":
		return NewYAMLCodec(), true
	default:
		return nil, false
	}
}
