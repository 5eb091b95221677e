package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CycleRunner is anything that can run a learning cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// Scheduler runs learning cycles on a cron schedule. A tick that fires while
// the previous cycle is still running is skipped.
type Scheduler struct {
	spec   string
	runner CycleRunner
	log    zerolog.Logger

	mu      sync.Mutex
	cron    *rcron.Cron
	entry   rcron.EntryID
	ctx     context.Context
	lastErr error
	runs    int
}

// NewScheduler validates spec (standard five-field cron or a descriptor such
// as "@every 5m") and returns a stopped scheduler.
func NewScheduler(spec string, runner CycleRunner, log zerolog.Logger) (*Scheduler, error) {
	if _, err := rcron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:   spec,
		runner: runner,
		log:    log.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Start begins scheduling. Cycles receive ctx; cancelling it stops the
// scheduler and waits for a running cycle to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	logger := cronLogger{log: s.log}
	c := rcron.New(
		rcron.WithLogger(logger),
		rcron.WithChain(rcron.Recover(logger), rcron.SkipIfStillRunning(logger)),
	)

	id, err := c.AddFunc(s.spec, s.tick)
	if err != nil {
		return fmt.Errorf("schedule cycle: %w", err)
	}

	s.cron = c
	s.entry = id
	s.ctx = ctx
	c.Start()

	s.log.Info().Str("schedule", s.spec).Time("next", c.Entry(id).Next).Msg("Scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts scheduling and waits up to 30s for a running cycle
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.log.Warn().Msg("Stop timeout waiting for running cycle")
	}
	s.log.Info().Msg("Scheduler stopped")
}

// RunNow runs a cycle immediately, outside the schedule
func (s *Scheduler) RunNow(ctx context.Context) (CycleReport, error) {
	report, err := s.runner.RunCycle(ctx)
	s.record(err)
	return report, err
}

// Next returns the next scheduled run, zero when stopped
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Stats returns the number of completed runs and the last error
func (s *Scheduler) Stats() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastErr
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	_, err := s.runner.RunCycle(ctx)
	s.record(err)
	if err != nil {
		s.log.Error().Err(err).Msg("Scheduled cycle failed")
	}
}

func (s *Scheduler) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastErr = err
}

// cronLogger adapts zerolog to the cron.Logger interface
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
