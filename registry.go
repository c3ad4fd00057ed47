package pipetree

import (
	"bytes"
	"runtime"
	"strconv"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// The reference implementation keys a pipe to "the currently executing
// thread" via pthread_key_t. Go has no goroutine-local storage, so the same
// association is emulated here by keying a concurrent map on the calling
// goroutine's id, extracted from its own stack trace header. Every worker
// goroutine launched by Open/Send sets and clears its own entry around its
// body; EnterScope/ExitScope/Tether/Untether/Kill read it to find "this
// pipe" the same way the reference implementation's context functions do.
var contextRegistry = xsync.NewMapOf[uint64, *Pipe]()

// labelRegistry supports the Label/Lookup addition: named pipes reachable
// by name rather than by passing the *Pipe value around.
var labelRegistry = xsync.NewMapOf[string, *Pipe]()

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// currentContext returns the pipe associated with the calling goroutine, if
// any.
func currentContext() *Pipe {
	p, _ := contextRegistry.Load(goroutineID())
	return p
}

// setContext associates drain with the calling goroutine.
func setContext(drain *Pipe) {
	contextRegistry.Store(goroutineID(), drain)
}

// clearContext disassociates the calling goroutine from any pipe.
func clearContext() {
	contextRegistry.Delete(goroutineID())
}

// currentOrNewContext returns the pipe already associated with the calling
// goroutine, or creates a placeholder pipe for it, pools the placeholder
// among the root pipes, and associates it, mirroring how an unmanaged
// goroutine first touching the package acquires a pipe identity for the
// purpose of opening or tethering children.
func currentOrNewContext(logger *zerolog.Logger) *Pipe {
	if drain := currentContext(); drain != nil {
		return drain
	}
	drain := newPipe(true, logger)
	placePooled(drain)
	setContext(drain)
	return drain
}

// registryForget drops p's label registry entry, if p still owns it:
// called from retire, since a retired pipe must never again be resolved
// by label. Goroutine context entries are not touched here; they are
// removed by clearContext.
func registryForget(p *Pipe) {
	if p.label == "" {
		return
	}
	if cur, ok := labelRegistry.Load(p.label); ok && cur == p {
		labelRegistry.Delete(p.label)
	}
}
