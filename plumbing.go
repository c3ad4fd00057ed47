package pipetree

// tether attaches source s to drain d. If s already has a reader and it is
// d (at the same scope depth it was first tethered from), this is a no-op
// success. Lock order: source then drain, per the package-wide rule.
func tether(s, d *Pipe) error {
	s.lock.Lock()
	if s.reader != nil {
		if drainedBy(s, d) {
			s.lock.Unlock()
			displace(s)
			return nil
		}
		s.lock.Unlock()
		return ErrNotDrain
	}

	d.lock.Lock()
	r, w := newComplementaryLinks(d, s)
	s.reader = r
	if s.yielded {
		d.scope.finishers.enqueue(w)
	} else {
		d.scope.blockers.push(w)
	}
	s.depth = scopeLevel(d)
	d.lock.Unlock()
	s.lock.Unlock()

	displace(s)
	return nil
}

// untether is the drain-side mechanism: it structurally removes s from
// whatever it is tethered to and pools or retires it, without asking
// whether the caller is entitled to. The public Untether operation and Kill
// enforce that permission (via drainedBy against the calling goroutine's
// own context) before reaching this; internal callers such as
// descendantsUntethered and root-pool teardown already know s is theirs to
// untether by construction.
func untether(s *Pipe) error {
	s.lock.Lock()
	if s.reader == nil {
		s.lock.Unlock()
		pooled(s)
		return nil
	}

	d := s.reader.peer
	d.lock.Lock()
	child := bilaterallyDequeue(s.reader)
	s.reader = nil
	d.lock.Unlock()
	s.lock.Unlock()

	if child != s {
		s.taint(201)
		d.taint(202)
		return ErrInvalidPipe
	}
	unpool(d)
	pooled(s)
	return nil
}

// descendantsUntethered repeatedly untethers whatever sits in p's current
// scope frame (finishers first, then blockers) until it's empty, without
// killing anything.
func descendantsUntethered(p *Pipe) {
	for {
		p.lock.Lock()
		e := p.scope
		var child *Pipe
		if !e.finishers.empty() {
			child = e.finishers.head.peer
		} else if !e.blockers.empty() {
			child = e.blockers.head.peer
		}
		p.lock.Unlock()
		if child == nil {
			return
		}
		untether(child)
	}
}

// heritablyKilledOrYielded walks from s toward the root, locking each
// ancestor before releasing its child so the chain cannot be untethered out
// from under the walk, returning true as soon as any node along the way
// (including s itself) is killed or has yielded.
func heritablyKilledOrYielded(s *Pipe) bool {
	s.lock.Lock()
	for {
		if s.yielded || s.killed {
			s.lock.Unlock()
			return true
		}
		if s.reader == nil {
			s.lock.Unlock()
			return false
		}
		d := s.reader.peer
		d.lock.Lock()
		s.lock.Unlock()
		s = d
	}
}

// heritablyTruncated reports the truncation level imposed by s's nearest
// ancestor, walking the same lock-coupled path as heritablyKilledOrYielded.
// It does not consult s's own scope frame (that is the public Truncated
// operation's job, checked before falling back to this walk). A pipe that
// has already yielded or been killed reports truncated regardless of any
// ancestor's counter, since there is no point asking it to produce more.
// Truncation is scope-scoped: each ancestor is consulted at the frame that
// held s when it was tethered, not necessarily its current top frame.
func heritablyTruncated(s *Pipe) uint64 {
	s.lock.Lock()
	if s.yielded || s.killed {
		s.lock.Unlock()
		return 1
	}
	for {
		if s.reader == nil {
			s.lock.Unlock()
			return 0
		}
		d := s.reader.peer
		depth := s.depth
		d.lock.Lock()
		s.lock.Unlock()

		e := frameAt(d, depth)
		if e.truncation != 0 {
			t := e.truncation
			d.lock.Unlock()
			return t
		}
		s = d
	}
}

// killable sets s.killed and wakes anyone waiting on its progress, then
// untethers it (which may pool or retire it, or leave it pooled awaiting
// its worker's next poll).
func killable(s *Pipe) {
	s.lock.Lock()
	s.killed = true
	if !s.yielded {
		s.progress.Signal()
	}
	s.lock.Unlock()
	untether(s)
}

// descendantsKilled kills every blocker of d's current scope frame and
// retires every finisher, repeating until both are empty.
func descendantsKilled(d *Pipe) {
	for {
		d.lock.Lock()
		e := d.scope
		var blocker *Pipe
		if !e.blockers.empty() {
			blocker = e.blockers.head.peer
		}
		finisherPending := !e.finishers.empty()
		d.lock.Unlock()

		switch {
		case blocker != nil:
			killable(blocker)
		case finisherPending:
			retireFinisher(d)
		default:
			return
		}
	}
}

// retireFinisher removes the head finisher from d's current scope frame,
// marks it killed, and retires it directly (pooling it instead only if it
// is still not retirable); it has already yielded, so no signalling is
// required.
func retireFinisher(d *Pipe) {
	d.lock.Lock()
	l := d.scope.finishers.dequeue()
	d.lock.Unlock()
	if l == nil {
		return
	}
	child := l.peer
	free(l)
	child.lock.Lock()
	child.reader = nil
	child.killed = true
	child.lock.Unlock()
	pooled(child)
}
