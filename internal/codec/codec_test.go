package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macsleuth/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func testSnapshot() *domain.Snapshot {
	snap := domain.NewSnapshot()
	snap.Fingerprints["AA:AA:AA:AA:AA:01"] = domain.Fingerprint{
		Identifier:   "AA:AA:AA:AA:AA:01",
		Hostnames:    []string{"nicks-iphone"},
		IPv6Suffixes: []string{"1:2:3:abcd"},
		OpenPorts:    []int{62078},
		DeviceTypes:  []string{"iOS"},
		LastIP:       "192.168.86.40",
		FirstSeen:    t0.Add(-time.Hour),
		LastSeen:     t0,
	}
	snap.Presence["nick"] = []domain.PresenceEvent{
		{Person: "nick", At: t0, Kind: domain.TransitionHome, Source: "homeassistant"},
	}
	snap.Ledger = []domain.LedgerEntry{
		{Identifier: "DA:00:00:00:00:0A", Person: "nick", LastSuggested: t0},
	}
	return snap
}

func TestJSONCodec(t *testing.T) {
	c := NewJSONCodec()
	c.now = func() time.Time { return t0 }

	var buf bytes.Buffer
	require.NoError(t, c.Export(testSnapshot(), &buf))
	assert.Contains(t, buf.String(), `"version": 1`)
	assert.Contains(t, buf.String(), `"saved_at": "2026-03-14T18:00:00Z"`)

	got, err := c.Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, testSnapshot(), got)
}

func TestJSONCodecParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		check   func(t *testing.T, snap *domain.Snapshot)
	}{
		{
			name:  "missing sections decode as empty",
			input: `{"version": 1}`,
			check: func(t *testing.T, snap *domain.Snapshot) {
				assert.True(t, snap.IsEmpty())
				assert.NotNil(t, snap.Fingerprints)
				assert.NotNil(t, snap.Presence)
			},
		},
		{
			name:    "unknown version",
			input:   `{"version": 7, "fingerprints": {}}`,
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "document without version",
			input:   `{"fingerprints": {}}`,
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:  "truncated document",
			input: `{"version": 1, "fingerp`,
		},
		{
			name:  "empty input",
			input: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := NewJSONCodec().Parse(strings.NewReader(tt.input))
			if tt.check == nil {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, snap)
		})
	}
}

func TestYAMLCodecState(t *testing.T) {
	c := NewYAMLCodec()

	var buf bytes.Buffer
	require.NoError(t, c.Export(testSnapshot(), &buf))
	assert.Contains(t, buf.String(), "identifier: AA:AA:AA:AA:AA:01")
	assert.Contains(t, buf.String(), "open_ports: [62078]")

	got, err := c.Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, testSnapshot(), got)
}

func TestExportPeoplePatch(t *testing.T) {
	suggestions := []domain.Suggestion{
		{Identifier: "DA:00:00:00:00:0B", Person: "nick"},
		{Identifier: "DA:00:00:00:00:0A", Person: "nick"},
		{Identifier: "DA:00:00:00:00:0A", Person: "nick"},
		{Identifier: "DA:00:00:00:00:0C", Person: "mo"},
		{Identifier: "", Person: "mo"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewYAMLCodec().ExportPeoplePatch(suggestions, &buf))

	want := `people:
  - person: mo
    wifi_macs:
      - DA:00:00:00:00:0C
  - person: nick
    wifi_macs:
      - DA:00:00:00:00:0A
      - DA:00:00:00:00:0B
`
	assert.Equal(t, want, buf.String())
}

func TestFormatSuggestion(t *testing.T) {
	s := domain.Suggestion{
		Identifier:     "DA:00:00:00:00:0A",
		Person:         "nick",
		Score:          0.6,
		MatchedAgainst: "AA:AA:AA:AA:AA:01",
		IP:             "192.168.86.77",
		Hostname:       "nick-phone",
		Evidence: []domain.EvidenceItem{
			{Kind: domain.EvidenceIPv6Suffix, Weight: 0.4},
			{Kind: domain.EvidenceHostnamePattern, Weight: 0.2},
		},
	}

	got := FormatSuggestion(s)
	assert.True(t, strings.HasPrefix(got, "MAC learning suggestion (confidence: 60%):\n"))
	assert.Contains(t, got, "Device: 192.168.86.77 - nick-phone")
	assert.Contains(t, got, "IPv6 suffix matches (very reliable)")
	assert.Contains(t, got, "Hostname pattern matches")
	assert.NotContains(t, got, "HIGH CONFIDENCE")
	assert.True(t, strings.HasSuffix(got, "Add 'DA:00:00:00:00:0A' to wifi_macs for nick in people_config.yaml"))

	s.Score = 1
	s.HighConfidence = true
	s.IP = ""
	got = FormatSuggestion(s)
	assert.Contains(t, got, "confidence: 100%")
	assert.Contains(t, got, "HIGH CONFIDENCE")
	assert.Contains(t, got, "Device: N/A - nick-phone")
}

func TestForFormat(t *testing.T) {
	c, ok := ForFormat("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Format())

	c, ok = ForFormat("yml")
	require.True(t, ok)
	assert.Equal(t, "yaml", c.Format())

	_, ok = ForFormat("ansible")
	assert.False(t, ok)
}
