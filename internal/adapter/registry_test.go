package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macsleuth/internal/domain"
	"macsleuth/internal/loader"
)

type fakeSource struct {
	name string
	obs  []domain.Observation
	err  error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Observe(ctx context.Context) ([]domain.Observation, error) {
	return f.obs, f.err
}

type fakeEnricher struct {
	name string
	fn   func([]domain.Observation) ([]domain.Observation, error)
}

func (f *fakeEnricher) Name() string { return f.name }

func (f *fakeEnricher) Enrich(ctx context.Context, obs []domain.Observation) ([]domain.Observation, error) {
	return f.fn(obs)
}

type fakePresence struct {
	name   string
	report PresenceReport
	err    error
}

func (f *fakePresence) Name() string { return f.name }

func (f *fakePresence) Presence(ctx context.Context, people []loader.Person) (PresenceReport, error) {
	return f.report, f.err
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	require.NoError(t, r.RegisterSource(&fakeSource{name: "nmap"}))
	assert.Error(t, r.RegisterSource(&fakeSource{name: "nmap"}))
	require.NoError(t, r.RegisterPresence(&fakePresence{name: "homeassistant"}))
	assert.Error(t, r.RegisterPresence(&fakePresence{name: "homeassistant"}))
	r.RegisterEnricher(&fakeEnricher{name: "ipv6-neighbors"})

	assert.Equal(t, []string{"homeassistant", "ipv6-neighbors", "nmap"}, r.Names())
}

func TestRegistry_Gather(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	require.NoError(t, r.RegisterSource(&fakeSource{name: "a", obs: []domain.Observation{{Identifier: "A", ObservedAt: scanTime}}}))
	require.NoError(t, r.RegisterSource(&fakeSource{name: "b", obs: []domain.Observation{{Identifier: "B", ObservedAt: scanTime}}}))
	require.NoError(t, r.RegisterSource(&fakeSource{name: "broken", err: errors.New("nmap not installed")}))

	r.RegisterEnricher(&fakeEnricher{name: "tag", fn: func(obs []domain.Observation) ([]domain.Observation, error) {
		out := append([]domain.Observation(nil), obs...)
		for i := range out {
			out[i].DeviceType = "iPhone"
		}
		return out, nil
	}})
	r.RegisterEnricher(&fakeEnricher{name: "failing", fn: func(obs []domain.Observation) ([]domain.Observation, error) {
		return nil, errors.New("router unreachable")
	}})

	ev := domain.PresenceEvent{Person: "nick", At: scanTime, Kind: domain.TransitionHome, Source: "ha"}
	require.NoError(t, r.RegisterPresence(&fakePresence{name: "ha", report: PresenceReport{
		Events: []domain.PresenceEvent{ev},
		Home:   map[string]bool{"nick": true, "mo": false},
	}}))
	require.NoError(t, r.RegisterPresence(&fakePresence{name: "tracker", report: PresenceReport{
		Home: map[string]bool{"nick": false, "mo": true},
	}}))

	got := r.Gather(context.Background(), nil)

	require.Len(t, got.Observations, 2)
	assert.Equal(t, "A", got.Observations[0].Identifier)
	assert.Equal(t, "B", got.Observations[1].Identifier)
	assert.Equal(t, "iPhone", got.Observations[0].DeviceType, "failed enricher keeps previous result")

	assert.Equal(t, []domain.PresenceEvent{ev}, got.PresenceEvents)
	assert.Equal(t, map[string]bool{"nick": true, "mo": true}, got.ReportedHome)

	require.Len(t, got.Errors, 2)
	assert.ErrorContains(t, got.Err(), "broken: nmap not installed")
	assert.ErrorContains(t, got.Err(), "failing: router unreachable")
}
