package pipetree

// enterScope pushes a fresh empty frame onto p.scope. The caller must hold
// p.lock.
func enterScope(p *Pipe) {
	p.scope = &scopeFrame{enclosure: p.scope}
}

// exitScope pops the top frame. Precondition: the frame holds nothing
// pending; callers that might have outstanding blockers/finishers must
// untether them first (see descendantsUntethered). Returns
// ErrScopeUnderflow if there is no enclosing frame to fall back to. The
// caller must hold p.lock.
func exitScope(p *Pipe) error {
	e := p.scope
	if e.enclosure == nil {
		return ErrScopeUnderflow
	}
	if !e.blockers.empty() || !e.finishers.empty() {
		p.taint(200)
		return ErrInvalidPipe
	}
	p.scope = e.enclosure
	return nil
}

// scopeLevel returns the number of enclosing frames of p's current top
// frame: 0 at the outermost. The caller must hold p.lock.
func scopeLevel(p *Pipe) int {
	n := 0
	for e := p.scope.enclosure; e != nil; e = e.enclosure {
		n++
	}
	return n
}

// frameAt returns the frame of d's scope stack that was on top when d was
// at the given level, by walking inward from d's current top frame. It's
// used to re-file a pipe into the same frame it was tethered into, even if
// the drain has since entered deeper nested scopes. The caller must hold
// d.lock.
func frameAt(d *Pipe, depth int) *scopeFrame {
	e := d.scope
	for level := scopeLevel(d); level > depth; level-- {
		e = e.enclosure
	}
	return e
}

// drainedBy reports whether d is s's current drain, addressed from the
// same scope depth at which s was tethered into it. A child opened in a
// scope its drain has since exited is not considered drained by it. The
// caller must hold s.lock; d is locked transiently to read its level.
func drainedBy(s, d *Pipe) bool {
	if s.reader == nil || s.reader.peer != d {
		return false
	}
	d.lock.Lock()
	level := scopeLevel(d)
	d.lock.Unlock()
	return s.depth == level
}

// vacateScopes exits every enclosed scope of s, untethering descendants
// along the way. Returns true if any extra frame had to be popped, the
// caller's cue to stamp CodeScopeNotExited onto the worker's status. The
// caller must NOT hold s.lock.
func vacateScopes(s *Pipe) bool {
	warned := false
	for {
		s.lock.Lock()
		nested := s.scope.enclosure != nil
		s.lock.Unlock()
		if !nested {
			return warned
		}
		warned = true
		descendantsUntethered(s)
		s.lock.Lock()
		err := exitScope(s)
		s.lock.Unlock()
		if err != nil {
			return warned
		}
	}
}
