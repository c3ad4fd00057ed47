package pipetree

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// packageLogger is the logger every pipe created by Open/Send carries,
// set by Config.Apply. Nil disables per-pipe logging.
var packageLogger *zerolog.Logger

// relayJoinTimeout is diagnostic-only: Sync logs a warning if draining the
// relay takes longer than this, but never fails anything because of it.
// Zero disables the warning. Set by Config.Apply.
var relayJoinTimeout time.Duration

// magicValid is the sentinel a healthy pipe's valid tag holds. Any other
// value is a "muggle" derived from the id of the first invariant check
// that failed, used only for diagnostics (see sink.go); once tainted a pipe fails every
// later operation with ErrInvalidPipe.
const magicValid uint32 = 0xF00DCAFE

// scopeFrame is one level of a pipe's scope stack: one blockers set, one
// finishers queue, and a saturating truncation counter, all isolated from
// enclosing frames.
type scopeFrame struct {
	truncation uint64
	blockers   pipeSet
	finishers  pipeQueue
	enclosure  *scopeFrame
}

// Pipe is a node in the task tree: the rendezvous point for one worker's
// result, and the registration point for its children. The zero value is
// not usable; pipes are created by newPipe.
type Pipe struct {
	id uint64 // monotonic, diagnostics only

	lock       sync.Mutex
	valid      atomic.Uint32 // read lock-free as a fast-path corruption check
	killed     bool
	zombie     bool
	yielded    bool
	placeholder bool

	pool   *listLink // entry in the root pool's set, if pooled
	reader *listLink // lone entry identifying this pipe's drain, if tethered
	depth  int       // drain's scope level at the moment of tethering

	scope *scopeFrame

	progress    sync.Cond // signalled when a blocker yields or the drain is killed
	termination sync.Cond // signalled when an untethered pipe yields

	result any
	status int

	label  string
	logger *zerolog.Logger
}

var pipeIDs atomic.Uint64

// newPipe allocates and fully initializes a pipe with a single outermost
// scope frame, ready to be tethered or pooled.
func newPipe(placeholder bool, logger *zerolog.Logger) *Pipe {
	p := &Pipe{
		id:          pipeIDs.Add(1),
		placeholder: placeholder,
		scope:       &scopeFrame{},
		logger:      logger,
	}
	p.progress.L = &p.lock
	p.termination.L = &p.lock
	p.valid.Store(magicValid)
	return p
}

// ok reports whether the pipe's fast-path corruption tag is still clean.
// Safe to call without holding the pipe's lock.
func (p *Pipe) ok() bool {
	return p != nil && p.valid.Load() == magicValid
}

// taint marks p permanently corrupted, identifying the failed check by id
// for diagnostics, and reports the failure to the bounded global sink. It
// may be called with or without p.lock held: valid is atomic and the sink
// has its own lock. exitScope calls it with the lock held, untether after
// releasing it.
func (p *Pipe) taint(id int) {
	p.valid.Store(muggle(id))
	globalSink.push(invariantFailure{pipeID: p.id, check: id})
	if p.logger != nil {
		p.logger.Error().Uint64("pipe", p.id).Int("check", id).Msg("pipetree: internal invariant failed")
	}
}

// muggle derives a tainted valid-tag value distinct from magicValid for
// every check id; the exact encoding is only ever compared for equality
// to magicValid, never decoded back, so collisions across ids are fine.
func muggle(id int) uint32 {
	v := uint32(id) ^ 0x5bd1e995
	if v == magicValid {
		v++
	}
	return v
}

// retirable reports whether p is ready to be freed: healthy, down to its
// single outermost scope frame with nothing pending in it, and
// either a placeholder whose last child has left or a result that has been
// both yielded and discarded. Zombies always report retirable. retirable
// locks p itself; the caller must NOT already hold p.lock.
func retirable(p *Pipe) bool {
	if !p.ok() {
		return false
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.zombie {
		return true
	}
	if p.scope == nil || p.scope.enclosure != nil {
		return false
	}
	if !p.scope.blockers.empty() || !p.scope.finishers.empty() {
		return false
	}
	return p.placeholder || (p.yielded && p.killed)
}

// retire frees a pipe's structure. Precondition: retirable(p), no reader,
// not pooled. retire locks p itself; the caller must NOT already hold
// p.lock, and must never touch p again afterward.
func retire(p *Pipe) {
	p.lock.Lock()
	p.valid.Store(muggle(0))
	p.scope = nil
	p.reader = nil
	p.pool = nil
	p.lock.Unlock()
	if p.logger != nil {
		p.logger.Debug().Uint64("pipe", p.id).Msg("pipetree: retired")
	}
	registryForget(p)
}
