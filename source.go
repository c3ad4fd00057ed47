package pipetree

// Operator is a function run in its own goroutine by Open, producing a
// result and a status for the caller to Read back.
type Operator func(operand any) (result any, status int)

// Mutator is a function run in its own goroutine by Send. It produces no
// readable result; the pipe backing it is reclaimed automatically once it
// returns.
type Mutator func(operand any)

// runOperator is the goroutine body launched by Open.
func runOperator(s *Pipe, operator Operator, operand any) {
	registered()
	setContext(s)

	if s.logger != nil {
		s.logger.Debug().Uint64("pipe", s.id).Str("operand", describeOperand(operand)).Msg("pipetree: operator starting")
	}
	s.result, s.status = operator(operand)

	warned := vacateScopes(s)
	yield(s, warned)

	clearContext()
	relayRace()
}

// runMutator is the goroutine body launched by Send.
func runMutator(s *Pipe, mutator Mutator, operand any) {
	registered()
	setContext(s)

	mutator(operand)

	vacateScopes(s)
	descendantsKilled(s)
	retire(s)

	clearContext()
	relayRace()
}

// yield locks source and dispatches to the untethered or tethered
// termination protocol. A source that has been killed takes the
// untethered path even if it still appears tethered at this instant: a
// concurrent Kill may have set the flag before it managed to finish
// untethering the pipe, and there is no reason to enqueue a killed result
// into anyone's finishers.
func yield(source *Pipe, warnedScopeNotExited bool) {
	descendantsKilled(source)

	source.lock.Lock()
	if source.killed || source.reader == nil {
		untetheredYield(source, warnedScopeNotExited)
	} else {
		tetheredYield(source, warnedScopeNotExited)
	}
}

// untetheredYield marks source as yielded and wakes anyone blocked reading
// it untethered. source must be locked on entry; unlocked on return.
func untetheredYield(s *Pipe, warnedScopeNotExited bool) {
	s.yielded = true
	s.termination.Signal()
	if !s.killed && s.status == 0 && warnedScopeNotExited {
		s.status = int(CodeScopeNotExited)
	}
	s.lock.Unlock()
}

// tetheredYield moves source from its drain's blockers to its finishers
// (re-filed into the same frame it was tethered into) and wakes the
// drain's progress condition. source must be locked on entry; both locks
// are released on return.
func tetheredYield(s *Pipe, warnedScopeNotExited bool) {
	d := s.reader.peer
	d.lock.Lock()

	e := frameAt(d, s.depth)
	w := s.reader.complement
	sever(w)
	e.finishers.enqueue(w)
	s.yielded = true

	d.progress.Signal()
	if s.status == 0 && warnedScopeNotExited {
		s.status = int(CodeScopeNotExited)
	}

	d.lock.Unlock()
	s.lock.Unlock()
}
