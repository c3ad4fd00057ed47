package pipetree

import "sync"

// pool is the process-wide registry of pipes that currently have no live
// drain: untethered pipes, and placeholders for unmanaged goroutines. Pool
// membership is exclusive with having a reader; teardown (Sync) walks it
// to find anything left dangling.
type pool struct {
	mu      sync.Mutex
	members pipeSet
}

var rootPool pool

// placePooled inserts d into the root pool unconditionally. Benign if d is
// already pooled. Lock order: pool before pipe, per the package-wide rule.
func placePooled(d *Pipe) {
	rootPool.mu.Lock()
	defer rootPool.mu.Unlock()
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.pool != nil {
		return
	}
	l := newLink(d)
	rootPool.members.push(l)
	d.pool = l
}

// pooled inserts d into the root pool if it isn't retirable, or retires it
// outright otherwise.
func pooled(d *Pipe) {
	if !retirable(d) {
		placePooled(d)
		return
	}
	displace(d)
	retire(d)
}

// displace removes p from the root pool if present; benign otherwise.
func displace(p *Pipe) {
	rootPool.mu.Lock()
	defer rootPool.mu.Unlock()
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.pool == nil {
		return
	}
	unilaterallyDelist(p.pool)
	p.pool = nil
}

// unpool retires p and removes it from the root pool if it's retirable;
// a no-op otherwise. Clears the calling goroutine's task-local context if
// p was its own placeholder.
func unpool(p *Pipe) {
	if !retirable(p) {
		return
	}
	p.lock.Lock()
	isPlaceholder := p.placeholder
	p.lock.Unlock()
	wasCurrent := isPlaceholder && currentContext() == p
	displace(p)
	retire(p)
	if wasCurrent {
		clearContext()
	}
}

// drainRootPool untethers and retires every pipe left in the root pool,
// used by Sync at process-wide teardown time.
func drainRootPool() {
	for {
		rootPool.mu.Lock()
		l := rootPool.members.pop()
		rootPool.mu.Unlock()
		if l == nil {
			return
		}
		p := l.peer
		free(l)
		p.lock.Lock()
		p.pool = nil
		p.lock.Unlock()

		vacateScopes(p)
		if retirable(p) {
			retire(p)
			continue
		}
		p.lock.Lock()
		wasPlaceholderKilled := p.placeholder
		if p.placeholder {
			p.killed = true
		}
		p.lock.Unlock()
		if wasPlaceholderKilled {
			descendantsKilled(p)
			pooled(p)
			continue
		}
		readUntethered(p)
	}
}
