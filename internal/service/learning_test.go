package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macsleuth/internal/adapter"
	"macsleuth/internal/correlation"
	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
	"macsleuth/internal/repository"
	"macsleuth/internal/repository/file"
)

var t0 = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

const (
	knownPhone   = "AA:BB:CC:DD:EE:01"
	rotatedPhone = "DA:A1:19:0A:BC:01"
)

type fakeGatherer struct {
	mu       sync.Mutex
	gathered adapter.Gathered
	calls    int
	people   []loader.Person
}

func (f *fakeGatherer) Gather(ctx context.Context, people []loader.Person) adapter.Gathered {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.people = people
	return f.gathered
}

type fakeJournal struct {
	appended []domain.Suggestion
	err      error
}

func (f *fakeJournal) Append(ctx context.Context, suggestions []domain.Suggestion) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, suggestions...)
	return nil
}

func (f *fakeJournal) Recent(ctx context.Context, since time.Time) ([]domain.Suggestion, error) {
	var out []domain.Suggestion
	for _, s := range f.appended {
		if !s.GeneratedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeJournal) Get(ctx context.Context, id string) (*domain.Suggestion, error) {
	return nil, repository.ErrNotFound
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (f *failingStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	return domain.NewSnapshot(), f.loadErr
}

func (f *failingStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	return f.saveErr
}

func referenceSnapshot() *domain.Snapshot {
	snap := domain.NewSnapshot()
	snap.Fingerprints[knownPhone] = domain.Fingerprint{
		Identifier:   knownPhone,
		Hostnames:    []string{"nicks-iphone"},
		IPv6Suffixes: []string{"1c2b:3aff:fe4d:5e6f"},
		FirstSeen:    t0.Add(-48 * time.Hour),
		LastSeen:     t0.Add(-24 * time.Hour),
	}
	return snap
}

func rotatedGathered() adapter.Gathered {
	return adapter.Gathered{
		Observations: []domain.Observation{{
			Identifier: rotatedPhone,
			IP:         "192.168.86.77",
			Hostname:   "nick-phone",
			IPv6:       []string{"fe80::1c2b:3aff:fe4d:5e6f"},
			ObservedAt: t0,
		}},
		ReportedHome: map[string]bool{"nick": true},
	}
}

var people = []loader.Person{{Name: "nick", WifiMACs: []string{"aa:bb:cc:dd:ee:01"}, HAPersonEntity: "person.nick"}}

func newTestService(t *testing.T, g Gatherer, store repository.StateStore, journal repository.SuggestionJournal) *LearningService {
	t.Helper()
	svc, err := NewLearningService(context.Background(), g, store, LearningOptions{
		Engine:  correlation.DefaultConfig(),
		People:  people,
		Journal: journal,
	}, zerolog.Nop())
	require.NoError(t, err)
	svc.now = func() time.Time { return t0 }
	return svc
}

func TestLearningService_RunCycle(t *testing.T) {
	store := repository.NewMemoryStore(referenceSnapshot())
	journal := &fakeJournal{}
	g := &fakeGatherer{gathered: rotatedGathered()}
	svc := newTestService(t, g, store, journal)

	events := make(chan Event, 10)
	svc.EventBus().Subscribe(events)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Suggestions, 1)
	s := report.Suggestions[0]
	assert.Equal(t, rotatedPhone, s.Identifier)
	assert.Equal(t, "nick", s.Person)
	assert.Equal(t, 0.6, s.Score)
	assert.Equal(t, knownPhone, s.MatchedAgainst)
	assert.Equal(t, []string{"nick"}, report.Missing)
	assert.Equal(t, t0, report.StartedAt)

	assert.Equal(t, people, g.people)
	assert.Equal(t, 1, store.Saves())
	assert.Len(t, journal.appended, 1)

	got := <-events
	assert.Equal(t, EventSuggestion, got.Type)
	assert.Equal(t, s, got.Payload)
	got = <-events
	assert.Equal(t, EventCycleComplete, got.Type)

	t.Run("persisted state includes ledger and fingerprint", func(t *testing.T) {
		snap, err := store.Load(context.Background())
		require.NoError(t, err)
		assert.Contains(t, snap.Fingerprints, rotatedPhone)
		require.Len(t, snap.Ledger, 1)
		assert.Equal(t, rotatedPhone, snap.Ledger[0].Identifier)
	})

	t.Run("second cycle is suppressed", func(t *testing.T) {
		report, err := svc.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Empty(t, report.Suggestions)
		assert.Equal(t, 1, report.Suppressed)
		assert.Len(t, journal.appended, 1)
	})

	t.Run("cleared pair is suggested again", func(t *testing.T) {
		removed, err := svc.ClearLedger(context.Background(), "da-a1-19-0a-bc-01", "nick")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		report, err := svc.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Len(t, report.Suggestions, 1)
	})

	t.Run("suggestions come from the journal", func(t *testing.T) {
		got, err := svc.Suggestions(context.Background(), 24*time.Hour)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestLearningService_RestartKeepsLedger(t *testing.T) {
	store := repository.NewMemoryStore(referenceSnapshot())
	g := &fakeGatherer{gathered: rotatedGathered()}

	first := newTestService(t, g, store, nil)
	report, err := first.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Suggestions, 1)

	second := newTestService(t, g, store, nil)
	report, err = second.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Suggestions)
	assert.Equal(t, 1, report.Suppressed)
}

func TestLearningService_SourceErrors(t *testing.T) {
	g := &fakeGatherer{gathered: adapter.Gathered{
		Errors: []error{errors.New("nmap: executable not found")},
	}}
	svc := newTestService(t, g, repository.NewMemoryStore(nil), nil)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"nmap: executable not found"}, report.SourceErrors)
	assert.Zero(t, report.Ingested)
}

func TestLearningService_StoreFailures(t *testing.T) {
	t.Run("corrupt state starts empty", func(t *testing.T) {
		store := &failingStore{loadErr: repository.ErrCorruptState}
		svc := newTestService(t, &fakeGatherer{}, store, nil)
		assert.True(t, svc.Snapshot().IsEmpty())
	})

	t.Run("state path that is a directory starts empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, os.Mkdir(path, 0o755))

		svc := newTestService(t, &fakeGatherer{}, file.New(path), nil)
		assert.True(t, svc.Snapshot().IsEmpty())
	})

	t.Run("other load errors are returned", func(t *testing.T) {
		store := &failingStore{loadErr: errors.New("permission denied")}
		_, err := NewLearningService(context.Background(), &fakeGatherer{}, store, LearningOptions{}, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("save failure fails the cycle", func(t *testing.T) {
		store := &failingStore{saveErr: errors.New("disk full")}
		svc := newTestService(t, &fakeGatherer{gathered: rotatedGathered()}, store, nil)
		_, err := svc.RunCycle(context.Background())
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("journal failure does not fail the cycle", func(t *testing.T) {
		store := repository.NewMemoryStore(referenceSnapshot())
		svc := newTestService(t, &fakeGatherer{gathered: rotatedGathered()}, store, &fakeJournal{err: errors.New("locked")})
		report, err := svc.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Len(t, report.Suggestions, 1)
	})
}

func TestLearningService_Accessors(t *testing.T) {
	svc := newTestService(t, &fakeGatherer{}, repository.NewMemoryStore(referenceSnapshot()), nil)

	fp, ok := svc.Fingerprint("aa:bb:cc:dd:ee:01")
	require.True(t, ok)
	assert.Equal(t, []string{"nicks-iphone"}, fp.Hostnames)

	_, err := svc.ClearLedger(context.Background(), "", "")
	assert.Error(t, err)

	removed, err := svc.ClearLedger(context.Background(), "", "nick")
	require.NoError(t, err)
	assert.Zero(t, removed)

	svc.SetIdentities([]loader.Person{{Name: "mo"}})
	assert.Equal(t, "mo", svc.People()[0].Name)

	_, err = svc.Suggestions(context.Background(), time.Hour)
	assert.Error(t, err, "no journal configured")
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 1)
	full := make(chan Event)
	bus.Subscribe(fast)
	bus.Subscribe(full)

	bus.Publish(Event{Type: EventCycleComplete})
	assert.Equal(t, EventCycleComplete, (<-fast).Type)

	bus.Unsubscribe(fast)
	bus.Publish(Event{Type: EventCycleComplete})
	select {
	case <-fast:
		t.Fatal("unsubscribed channel received an event")
	default:
	}
}
