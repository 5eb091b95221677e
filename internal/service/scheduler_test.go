package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (c *countingRunner) RunCycle(ctx context.Context) (CycleReport, error) {
	c.runs.Add(1)
	return CycleReport{}, c.err
}

func TestNewScheduler(t *testing.T) {
	_, err := NewScheduler("every five minutes", &countingRunner{}, zerolog.Nop())
	assert.Error(t, err)

	for _, spec := range []string{"*/5 * * * *", "@every 1m", "@hourly"} {
		_, err := NewScheduler(spec, &countingRunner{}, zerolog.Nop())
		assert.NoError(t, err, spec)
	}
}

func TestScheduler_Runs(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewScheduler("@every 1s", runner, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start")
	assert.False(t, s.Next().IsZero())

	require.Eventually(t, func() bool { return runner.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	assert.True(t, s.Next().IsZero())
	runs, lastErr := s.Stats()
	assert.GreaterOrEqual(t, runs, 1)
	assert.NoError(t, lastErr)
}

func TestScheduler_RunNow(t *testing.T) {
	runner := &countingRunner{err: errors.New("boom")}
	s, err := NewScheduler("@hourly", runner, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.RunNow(context.Background())
	assert.Error(t, err)

	runs, lastErr := s.Stats()
	assert.Equal(t, 1, runs)
	assert.EqualError(t, lastErr, "boom")
}
