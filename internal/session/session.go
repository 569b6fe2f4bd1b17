// Package session schedules repeated executions of the full probe suite
// and collects per-run results. A session runs exactly once: it moves from
// Idle through Running to Completed and always yields a result set, even
// when every probe fails.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkproofhq/linkproof/internal/probe"
	"github.com/linkproofhq/linkproof/pkg/types"
)

// State tracks the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Config controls session scheduling. Parallelism applies across
// run-iterations only; probes within one iteration always execute
// sequentially because several of them saturate the same link.
type Config struct {
	Runs     int
	Parallel int
	// SerializeSaturating keeps link-saturating probes (bufferbloat,
	// jitter) from overlapping across workers when Parallel > 1.
	SerializeSaturating bool
	ProbeTimeout        time.Duration
}

// Session executes Runs iterations of the configured probe suite.
type Session struct {
	cfg       Config
	probes    []probe.Probe
	collector *Collector
	logger    logrus.FieldLogger
	now       func() time.Time

	mu      sync.Mutex
	state   State
	satLock sync.Mutex
}

type Option func(*Session)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New validates the scheduling configuration and builds a session. The
// probe slice fixes the per-iteration execution order.
func New(cfg Config, probes []probe.Probe, opts ...Option) (*Session, error) {
	if cfg.Runs < 1 {
		return nil, fmt.Errorf("runs must be a positive integer, got %d", cfg.Runs)
	}
	if cfg.Parallel < 1 {
		return nil, fmt.Errorf("parallel must be a positive integer, got %d", cfg.Parallel)
	}
	if cfg.Parallel > cfg.Runs {
		return nil, fmt.Errorf("parallel (%d) must not exceed runs (%d)", cfg.Parallel, cfg.Runs)
	}
	if len(probes) == 0 {
		return nil, fmt.Errorf("at least one probe is required")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Minute
	}

	s := &Session{
		cfg:       cfg,
		probes:    probes,
		collector: NewCollector(cfg.Runs),
		logger:    logrus.StandardLogger(),
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes the session. Workers stop picking up new run-iterations
// once ctx is cancelled, but an in-flight iteration is allowed to finish
// so external tool subprocesses are not orphaned. The returned results are
// ordered by run index regardless of completion order.
func (s *Session) Run(ctx context.Context) ([]types.RunResult, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("session already %s", state)
	}
	s.state = StateRunning
	s.mu.Unlock()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for run := range jobs {
				s.collector.Put(s.runIteration(ctx, run))
			}
		}()
	}

feed:
	for run := 1; run <= s.cfg.Runs; run++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- run:
		}
	}
	close(jobs)
	wg.Wait()

	s.mu.Lock()
	s.state = StateCompleted
	s.mu.Unlock()

	return s.collector.Ordered(), nil
}

// runIteration invokes every probe once, in suite order. A probe failure
// never aborts the iteration: remaining probes still execute and the
// failure is recorded as a sample.
func (s *Session) runIteration(ctx context.Context, run int) types.RunResult {
	result := types.RunResult{
		Run:       run,
		StartedAt: s.now().UTC(),
		Samples:   make([]types.Sample, 0, len(s.probes)),
	}
	s.logger.WithField("run", run).Info("run-iteration starting")

	for _, p := range s.probes {
		sample := s.invoke(ctx, p, run)
		if sample.OK() {
			s.logger.WithFields(logrus.Fields{"run": run, "kind": sample.Kind}).Debug("probe completed")
		} else {
			s.logger.WithFields(logrus.Fields{
				"run":    run,
				"kind":   sample.Kind,
				"reason": sample.Failure.Reason,
			}).Warn("probe failed")
		}
		result.Samples = append(result.Samples, sample)
	}

	result.CompletedAt = s.now().UTC()
	s.logger.WithField("run", run).Info("run-iteration complete")
	return result
}

// invoke runs one probe under its timeout, serializing link-saturating
// probes across workers when configured. Panics escaping an adapter are
// converted to failure samples so nothing propagates past this boundary.
func (s *Session) invoke(ctx context.Context, p probe.Probe, run int) (sample types.Sample) {
	if s.cfg.SerializeSaturating && s.cfg.Parallel > 1 && saturating(p.Kind()) {
		s.satLock.Lock()
		defer s.satLock.Unlock()
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			sample = types.Fail(p.Kind(), types.ReasonParseError, fmt.Sprintf("probe panicked: %v", r))
			sample.Run = run
			sample.Timestamp = s.now().UTC()
		}
	}()

	sample = p.Run(probeCtx)
	sample.Kind = p.Kind()
	sample.Run = run
	sample.Timestamp = s.now().UTC()
	return sample
}

func saturating(kind types.ProbeKind) bool {
	return kind == types.KindBufferbloat || kind == types.KindJitterLoss
}
