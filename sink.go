package pipetree

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// invariantFailure records one taint event: a pipe's internal bookkeeping
// disagreed with itself, and the pipe is now permanently fenced off from
// further use.
type invariantFailure struct {
	pipeID uint64
	check  int
}

// sink is a bounded, drop-oldest collector of invariant failures, logged
// through an optional rate-limited *zerolog.Logger so a failure storm can't
// itself become a liveness problem. Every taint across the whole process
// pushes into the single package-level sink; Sync drains and logs whatever
// remains at teardown.
type sink struct {
	mu       sync.Mutex
	capacity int
	entries  []invariantFailure
	dropped  uint64

	logger  *zerolog.Logger
	limiter *rate.Limiter
}

func newSink(capacity int, logger *zerolog.Logger, limiter *rate.Limiter) *sink {
	return &sink{capacity: capacity, logger: logger, limiter: limiter}
}

var globalSink = newSink(64, nil, rate.NewLimiter(rate.Every(50*time.Millisecond), 20))

func (s *sink) push(f invariantFailure) {
	s.mu.Lock()
	if len(s.entries) >= s.capacity {
		s.entries = s.entries[1:]
		s.dropped++
	}
	s.entries = append(s.entries, f)
	s.mu.Unlock()

	if s.logger != nil && (s.limiter == nil || s.limiter.Allow()) {
		s.logger.Warn().Uint64("pipe", f.pipeID).Int("check", f.check).Msg("pipetree: invariant failure recorded")
	}
}

// drain empties the sink, returning everything collected and how many
// entries were dropped for being over capacity since the last drain.
func (s *sink) drain() ([]invariantFailure, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries
	dropped := s.dropped
	s.entries = nil
	s.dropped = 0
	return entries, dropped
}

// configure replaces the sink's logger and rate limiter; used by
// Config.Apply to route diagnostics to the host's own logger.
func (s *sink) configure(logger *zerolog.Logger, limiter *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	s.limiter = limiter
}
