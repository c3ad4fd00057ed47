package pipetree

// read is the dispatcher behind the public Read operation: a source with
// read from a goroutine with no pipe of its own is read untethered (its
// own termination signal); otherwise source is tethered to the reading
// goroutine's pipe (a no-op if it already is) before being read
// tethered, and a source tethered to some other pipe fails ErrNotDrain.
func read(source *Pipe) (any, int, error) {
	if source == nil {
		return nil, 0, ErrNulPipe
	}
	if !source.ok() {
		return nil, 0, ErrInvalidPipe
	}
	drain := currentContext()
	if drain == nil {
		return readUntethered(source)
	}
	if err := tether(source, drain); err != nil {
		return nil, 0, err
	}
	return readTethered(source)
}

// readUntethered reads a pipe with no reader, waiting on its own
// termination signal if it hasn't yielded yet. Retires or re-pools the
// pipe once read, since an untethered read is necessarily final.
func readUntethered(s *Pipe) (any, int, error) {
	s.lock.Lock()
	if s.reader != nil {
		s.lock.Unlock()
		return nil, 0, ErrNotDrain
	}
	for !s.yielded {
		s.termination.Wait()
	}
	result := s.result
	status := s.status
	s.status = 0
	s.yielded = true
	s.lock.Unlock()

	killable(s)
	return result, status, nil
}

// readTethered reads a source currently tethered to the calling
// goroutine's own pipe, waiting on the drain's progress condition (shared
// with every other source tethered to it) rather than the source's own
// termination signal, since any of the drain's other sources finishing
// first will also wake it. Interrupted early if the drain itself is
// killed while waiting.
func readTethered(s *Pipe) (any, int, error) {
	d := currentContext()
	d.lock.Lock()
	done := false
	for !done {
		done = s.yielded || d.killed
		if done {
			break
		}
		d.progress.Wait()
	}
	status := s.status
	s.status = 0
	var result any
	if s.yielded {
		result = s.result
	}
	d.lock.Unlock()

	killable(s)
	return result, status, nil
}

// busy reports whether reading source would currently block.
func busy(s *Pipe) (bool, error) {
	if s == nil {
		return false, ErrNulPipe
	}
	if !s.ok() {
		return false, ErrInvalidPipe
	}
	s.lock.Lock()
	b := !s.yielded
	s.lock.Unlock()
	return b, nil
}

// blocked reports whether a call to selectPipe would currently block: the
// calling goroutine's own pipe has no finished child waiting but does have
// at least one still running. A goroutine with no pipe of its own (never
// having opened or sent anything) is reported as not blocked.
func blocked() bool {
	d := currentContext()
	if d == nil {
		return false
	}
	d.lock.Lock()
	b := d.scope.finishers.empty() && !d.scope.blockers.empty()
	d.lock.Unlock()
	return b
}

// selectPipe returns the next child of the calling goroutine's own pipe to
// finish, blocking until one does, until the caller is itself killed, or
// until there is nothing left to wait for. A nil pipe with a nil error
// means there was nothing to select, not an error; ErrKilled means the
// wait was cut short by the caller being killed.
func selectPipe() (*Pipe, error) {
	d := currentContext()
	if d == nil {
		return nil, nil
	}

	d.lock.Lock()
	var s *Pipe
	var killed bool
	for {
		killed = d.killed
		if killed {
			break
		}
		if l := d.scope.finishers.dequeue(); l != nil {
			s = l.peer
			free(l)
			break
		}
		if d.scope.blockers.empty() {
			break
		}
		d.progress.Wait()
	}
	d.lock.Unlock()

	if s != nil {
		s.lock.Lock()
		s.reader = nil
		s.lock.Unlock()
	}
	if killed {
		return nil, ErrKilled
	}
	return s, nil
}
