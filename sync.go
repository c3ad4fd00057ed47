package pipetree

import (
	"sync"
	"time"
)

// The reference implementation joins its worker threads through a relay
// chain: each thread that finishes hands off to whichever thread was
// already waiting to be joined, so a single call to _nthm_synchronize only
// ever has to join the very last one. Goroutines carry no OS-level join
// handle and don't leak if never waited on, so the chain collapses to a
// plain WaitGroup here; what survives from the original protocol is the
// two-phase register/confirm handshake (a worker counts as "running" only
// once its goroutine has actually started, not merely been requested) and
// the single synchronization point Sync exposes to the host.
var relay struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	starters int
	confirm  sync.Cond
}

func init() {
	relay.confirm.L = &relay.mu
}

// registerStarting records that a worker goroutine is about to be spawned,
// bumping the WaitGroup before the goroutine exists so a concurrent Sync
// can never observe a moment with zero pending workers while one is still
// mid-launch.
func registerStarting() {
	relay.wg.Add(1)
}

// registered is called by the worker goroutine itself immediately on
// entry, confirming to anyone that spawned it (via awaitStarted) that it
// has actually begun running.
func registered() {
	relay.mu.Lock()
	relay.starters++
	relay.confirm.Broadcast()
	relay.mu.Unlock()
}

// awaitStarted blocks the spawning goroutine until the worker it just
// launched has called registered, mirroring the reference implementation's
// guarantee that pthread_create's caller doesn't proceed until the new
// thread is confirmed running.
func awaitStarted() {
	relay.mu.Lock()
	for relay.starters == 0 {
		relay.confirm.Wait()
	}
	relay.starters--
	relay.mu.Unlock()
}

// relayRace is called by a worker goroutine as the last thing it does
// before exiting, completing the handoff registerStarting began.
func relayRace() {
	relay.wg.Done()
}

// Sync blocks until every worker goroutine started by Open or Send has
// exited, then drains the root pool of anything left dangling (pipes never
// read, scopes never exited) and logs a summary of any invariant failures
// recorded since the last Sync.
func Sync() {
	joined := make(chan struct{})
	go func() {
		relay.wg.Wait()
		close(joined)
	}()
	if relayJoinTimeout > 0 {
		select {
		case <-joined:
		case <-time.After(relayJoinTimeout):
			if packageLogger != nil {
				packageLogger.Warn().Dur("waited", relayJoinTimeout).Msg("pipetree: relay join is taking longer than expected")
			}
			<-joined
		}
	} else {
		<-joined
	}
	drainRootPool()
	if entries, dropped := globalSink.drain(); len(entries) > 0 || dropped > 0 {
		if globalSink.logger != nil {
			globalSink.logger.Warn().
				Int("failures", len(entries)).
				Uint64("dropped", dropped).
				Msg("pipetree: invariant failures since last sync")
		}
	}
}
