package pipetree

import "math"

// Open starts worker in its own goroutine, tethered to the calling
// goroutine's own pipe (creating a placeholder for it if this is the
// first pipetree call an unmanaged goroutine has made), and returns a
// pipe that will eventually be readable with Read. Returns ErrInvalidPipe
// if the calling goroutine's own pipe has already yielded, and ErrKilled
// if it or any of its ancestors is killed or an ancestor has yielded.
func Open(worker Operator, operand any) (*Pipe, error) {
	drain := currentOrNewContext(packageLogger)
	drain.lock.Lock()
	alreadyYielded := drain.yielded
	drain.lock.Unlock()
	if alreadyYielded {
		return nil, ErrInvalidPipe
	}
	if heritablyKilledOrYielded(drain) {
		return nil, ErrKilled
	}

	source := newPipe(false, packageLogger)
	if err := tether(source, drain); err != nil {
		return nil, err
	}

	registerStarting()
	go runOperator(source, worker, operand)
	awaitStarted()
	return source, nil
}

// Send starts mutator in its own goroutine with no readable pipe; it is
// reclaimed automatically once it returns, and Sync waits for it like any
// other pipetree worker. Returns ErrInvalidPipe if the calling
// goroutine's own pipe has already yielded, and ErrKilled if it or any of
// its ancestors is killed or an ancestor has yielded. A call from an
// unmanaged goroutine with no pipe of its own is allowed. The mutator's
// pipe is never tethered to the caller's pipe.
func Send(mutator Mutator, operand any) error {
	drain := currentContext()
	if drain != nil {
		drain.lock.Lock()
		alreadyYielded := drain.yielded
		drain.lock.Unlock()
		if alreadyYielded {
			return ErrInvalidPipe
		}
		if heritablyKilledOrYielded(drain) {
			return ErrKilled
		}
	}

	source := newPipe(false, packageLogger)
	registerStarting()
	go runMutator(source, mutator, operand)
	awaitStarted()
	return nil
}

// Read performs a blocking read on source, retiring or re-pooling it
// afterward. An untethered source read from a managed goroutine is first
// tethered to that goroutine's pipe; a source tethered to a different
// goroutine's pipe fails with ErrNotDrain.
func Read(source *Pipe) (result any, status int, err error) {
	return read(source)
}

// Busy reports whether Read(source) would currently block.
func Busy(source *Pipe) (bool, error) {
	return busy(source)
}

// Blocked reports whether Select would currently block.
func Blocked() bool {
	return blocked()
}

// Select returns the next child of the calling goroutine's own pipe to
// finish, blocking until one does. Returns (nil, nil) if there is nothing
// left to select, and ErrKilled if the wait is cut short by the caller
// itself being killed.
func Select() (*Pipe, error) {
	return selectPipe()
}

// Truncate tells source, a direct child of the calling goroutine's own
// pipe, to truncate its output: source and every descendant it has
// opened from its current scope will see Truncated() return a non-zero
// count from then on. Returns ErrNotDrain
// if the caller is not source's current drain.
func Truncate(source *Pipe) error {
	if source == nil {
		return ErrNulPipe
	}
	if !source.ok() {
		return ErrInvalidPipe
	}
	drain := currentContext()
	source.lock.Lock()
	if drain == nil || !drainedBy(source, drain) {
		source.lock.Unlock()
		return ErrNotDrain
	}
	if source.scope.truncation < math.MaxUint64 {
		source.scope.truncation++
	}
	source.lock.Unlock()
	return nil
}

// TruncateAll tells every pipe tethered to the calling goroutine's own
// pipe in its current scope to truncate its output; pipes tethered in an
// enclosing scope are not affected.
func TruncateAll() {
	drain := currentContext()
	if drain == nil {
		return
	}
	drain.lock.Lock()
	if drain.scope.truncation < math.MaxUint64 {
		drain.scope.truncation++
	}
	drain.lock.Unlock()
}

// Truncated is polled by worker code to decide whether to return a
// partial result. It reports the calling goroutine's own truncation
// count if non-zero, falling back to whatever its nearest truncated
// ancestor recorded. Returns ErrUnmanaged outside a managed task, since a
// goroutine with no pipe of its own has nothing to report.
func Truncated() (uint64, error) {
	source := currentContext()
	if source == nil {
		return 0, ErrUnmanaged
	}
	source.lock.Lock()
	own := source.scope.truncation
	source.lock.Unlock()
	if own != 0 {
		return own, nil
	}
	return heritablyTruncated(source), nil
}

// permittedToDetach reports whether the calling goroutine may untether or
// kill source: true unconditionally if source currently has no reader (it
// belongs to no one in particular), otherwise only if the caller is
// source's current drain at the scope depth it was tethered into.
func permittedToDetach(source *Pipe) bool {
	source.lock.Lock()
	hasReader := source.reader != nil
	ok := !hasReader || drainedBy(source, currentContext())
	source.lock.Unlock()
	return ok
}

// Kill tells source to abandon whatever it's doing and tears it down.
// Returns ErrNotDrain if source has a reader and the caller isn't it.
func Kill(source *Pipe) error {
	if source == nil {
		return ErrNulPipe
	}
	if !source.ok() {
		return ErrInvalidPipe
	}
	if !permittedToDetach(source) {
		return ErrNotDrain
	}
	killable(source)
	return nil
}

// KillAll tells every pipe tethered to the calling goroutine's own pipe
// in its current scope to abandon whatever it's doing; pipes tethered in
// an enclosing scope are not affected. The caller's own placeholder status, if
// any, is cleared for the duration so it isn't reclaimed prematurely
// while its children are being torn down.
func KillAll() {
	drain := currentContext()
	if drain == nil {
		return
	}
	drain.lock.Lock()
	wasPlaceholder := drain.placeholder
	drain.placeholder = false
	drain.lock.Unlock()

	descendantsKilled(drain)

	if wasPlaceholder {
		drain.lock.Lock()
		drain.placeholder = true
		drain.lock.Unlock()
		unpool(drain)
	}
}

// Killed is polled by worker code to decide whether a result it's about
// to produce will even be looked at. Called outside a managed task, it
// reports true: there is no drain left to care about the answer either
// way.
func Killed() bool {
	source := currentContext()
	if source == nil {
		return true
	}
	source.lock.Lock()
	dead := source.killed
	source.lock.Unlock()
	return dead
}

// Untether emancipates source from its drain: it will not be reclaimed
// when the drain exits, and remains readable by whoever holds it next.
// Returns ErrNotDrain if source has a reader and the caller isn't it.
func Untether(source *Pipe) error {
	if source == nil {
		return ErrNulPipe
	}
	if !source.ok() {
		return ErrInvalidPipe
	}
	if !permittedToDetach(source) {
		return ErrNotDrain
	}
	return untether(source)
}

// Tether attaches an untethered source to the calling goroutine's own
// pipe so it's taken into account by Select.
func Tether(source *Pipe) error {
	if source == nil {
		return ErrNulPipe
	}
	if !source.ok() {
		return ErrInvalidPipe
	}
	drain := currentOrNewContext(packageLogger)
	if heritablyKilledOrYielded(drain) {
		return ErrKilled
	}
	return tether(source, drain)
}

// EnterScope restricts Select, Blocked, and normal cleanup to pipes
// opened from this point on; pipes already open remain reachable only
// through the frame they were opened in, until a matching ExitScope.
func EnterScope() error {
	p := currentOrNewContext(packageLogger)
	if heritablyKilledOrYielded(p) {
		return ErrKilled
	}
	p.lock.Lock()
	enterScope(p)
	p.lock.Unlock()
	return nil
}

// ExitScope resumes the previous scope, untethering (not killing) any
// pipes opened since the matching EnterScope. Returns ErrScopeUnderflow
// if there is no enclosing scope to resume, including when called
// outside a managed task.
func ExitScope() error {
	p := currentContext()
	if p == nil {
		return ErrScopeUnderflow
	}
	p.lock.Lock()
	if p.scope.enclosure == nil {
		p.lock.Unlock()
		return ErrScopeUnderflow
	}
	p.lock.Unlock()

	descendantsUntethered(p)

	p.lock.Lock()
	err := exitScope(p)
	p.lock.Unlock()
	if err != nil {
		return err
	}
	unpool(p)
	return nil
}

// Label registers p so it can later be found by name with Lookup. An
// empty name clears any existing label.
func Label(p *Pipe, name string) error {
	if p == nil {
		return ErrNulPipe
	}
	if !p.ok() {
		return ErrInvalidPipe
	}
	p.lock.Lock()
	old := p.label
	p.label = name
	p.lock.Unlock()
	if old != "" {
		if cur, ok := labelRegistry.Load(old); ok && cur == p {
			labelRegistry.Delete(old)
		}
	}
	if name != "" {
		labelRegistry.Store(name, p)
	}
	return nil
}

// Lookup returns the pipe last labeled name, if any and if it hasn't
// since been retired.
func Lookup(name string) (*Pipe, bool) {
	p, ok := labelRegistry.Load(name)
	if !ok || !p.ok() {
		return nil, false
	}
	return p, true
}
