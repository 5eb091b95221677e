package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macsleuth/internal/domain"
	"macsleuth/internal/repository"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

// newTestRepo creates a repository backed by a temporary database file
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "macsleuth.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{name: "valid", input: sql.NullString{String: "nick", Valid: true}, expected: "nick"},
		{name: "null", input: sql.NullString{}, expected: ""},
		{name: "invalid with value", input: sql.NullString{String: "stale"}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestMarshalToNull(t *testing.T) {
	tests := []struct {
		name      string
		input     any
		wantValid bool
		want      string
	}{
		{name: "nil", input: nil},
		{name: "empty slice", input: []domain.EvidenceItem{}},
		{name: "nil slice", input: []domain.EvidenceItem(nil)},
		{name: "empty map", input: map[string]any{}},
		{
			name:      "evidence",
			input:     []domain.EvidenceItem{{Kind: domain.EvidenceIPv6Suffix, Weight: 0.4}},
			wantValid: true,
			want:      `[{"kind":"ipv6_suffix","weight":0.4}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalToNull(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, got.Valid)
			assert.Equal(t, tt.want, got.String)
		})
	}
}

func TestTimeFormatSortsLexically(t *testing.T) {
	early := formatTime(t0)
	later := formatTime(t0.Add(1500 * time.Millisecond))
	assert.Len(t, later, len(early))
	assert.Less(t, early, later)

	local := time.Date(2026, 3, 14, 19, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, early, formatTime(local))

	parsed, err := parseTime(later)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(t0.Add(1500*time.Millisecond)))
}

// ============================================================================
// State Tests
// ============================================================================

func TestLoadEmptyDatabase(t *testing.T) {
	repo := newTestRepo(t)

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestSaveAndLoadState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	snap := domain.NewSnapshot()
	snap.Fingerprints["AA:AA:AA:AA:AA:01"] = domain.Fingerprint{
		Identifier:   "AA:AA:AA:AA:AA:01",
		IPv6Suffixes: []string{"1:2:3:abcd"},
		FirstSeen:    t0,
		LastSeen:     t0,
	}
	snap.Presence["nick"] = []domain.PresenceEvent{{Person: "nick", At: t0, Kind: domain.TransitionHome}}

	require.NoError(t, repo.Save(ctx, snap))

	// Second save overwrites the single row
	snap.Ledger = append(snap.Ledger, domain.LedgerEntry{Identifier: "DA:00:00:00:00:0A", Person: "nick", LastSuggested: t0})
	require.NoError(t, repo.Save(ctx, snap))

	var rows int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM engine_state`).Scan(&rows))
	assert.Equal(t, 1, rows)

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestLoadCorruptState(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.db.Exec(`INSERT INTO engine_state (id, version, document, updated_at) VALUES (1, 1, '{"version": 1, "fing', '')`)
	require.NoError(t, err)

	snap, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrCorruptState))
	assert.True(t, snap.IsEmpty())
}

func TestLoadUnqueryableState(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.db.Exec(`DROP TABLE engine_state`)
	require.NoError(t, err)

	snap, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrCorruptState)
	require.NotNil(t, snap)
	assert.True(t, snap.IsEmpty())
}

func TestLoadCanceled(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := repo.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, repository.ErrCorruptState))
	assert.Nil(t, snap)
}

// ============================================================================
// Journal Tests
// ============================================================================

func TestAppendAssignsIDs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	suggestions := []domain.Suggestion{
		{Identifier: "DA:00:00:00:00:0A", Person: "nick", Score: 0.6, GeneratedAt: t0},
		{ID: "fixed", Identifier: "DA:00:00:00:00:0B", Person: "nick", Score: 0.7, GeneratedAt: t0},
	}
	require.NoError(t, repo.Append(ctx, suggestions))

	assert.NotEmpty(t, suggestions[0].ID)
	assert.Equal(t, "fixed", suggestions[1].ID)

	got, err := repo.Get(ctx, suggestions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, suggestions[0], *got)
}

func TestAppendEmpty(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.Append(context.Background(), nil))
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	full := domain.Suggestion{
		ID:             "newest",
		Identifier:     "DA:00:00:00:00:0C",
		Person:         "mo",
		Score:          0.95,
		HighConfidence: true,
		MatchedAgainst: "AA:AA:AA:AA:AA:02",
		IP:             "192.168.86.80",
		Hostname:       "mo-laptop-2",
		Evidence: []domain.EvidenceItem{
			{Kind: domain.EvidenceDeviceType, Weight: 0.3},
			{Kind: domain.EvidenceHostnamePattern, Weight: 0.2},
		},
		GeneratedAt: t0.Add(-time.Hour),
	}

	require.NoError(t, repo.Append(ctx, []domain.Suggestion{
		{ID: "old", Identifier: "DA:00:00:00:00:0A", Person: "nick", Score: 0.6, GeneratedAt: t0.Add(-48 * time.Hour)},
		{ID: "middle", Identifier: "DA:00:00:00:00:0B", Person: "nick", Score: 0.7, GeneratedAt: t0.Add(-3 * time.Hour)},
		full,
	}))

	got, err := repo.Recent(ctx, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, full, got[0])
	assert.Equal(t, "middle", got[1].ID)
	assert.Nil(t, got[1].Evidence)

	got, err = repo.Recent(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
