package pipetree

// A listLink is one half of a complementary pair: every membership of a
// pipe in a list held by another pipe is mirrored by a complementary entry
// in some list held by the first, so either side can locate and unlink the
// other once the appropriate locks are held. peer identifies which pipe
// this entry stands for; it is not the pipe that owns the containing list.
type listLink struct {
	peer       *Pipe
	complement *listLink

	prev, next *listLink
	set        *pipeSet   // non-nil iff currently linked into this set
	queue      *pipeQueue // non-nil iff currently linked into this queue
}

func newLink(peer *Pipe) *listLink {
	return &listLink{peer: peer}
}

// newComplementaryLinks allocates r (identifying drain d, destined for
// source s's reader list) and w (identifying source s, destined for d's
// blockers or finishers), cross-linked as complements.
func newComplementaryLinks(d, s *Pipe) (r, w *listLink) {
	r = newLink(d)
	w = newLink(s)
	r.complement = w
	w.complement = r
	return r, w
}

// pipeSet is an unordered doubly linked list of pipes, used for a scope
// frame's blockers and for the root pool.
type pipeSet struct {
	head *listLink
}

func (s *pipeSet) push(l *listLink) {
	l.set = s
	l.queue = nil
	l.prev = nil
	l.next = s.head
	if s.head != nil {
		s.head.prev = l
	}
	s.head = l
}

func (s *pipeSet) sever(l *listLink) {
	if l.prev != nil {
		l.prev.next = l.next
	} else {
		s.head = l.next
	}
	if l.next != nil {
		l.next.prev = l.prev
	}
	l.prev, l.next, l.set = nil, nil, nil
}

func (s *pipeSet) pop() *listLink {
	l := s.head
	if l == nil {
		return nil
	}
	s.sever(l)
	return l
}

func (s *pipeSet) empty() bool { return s.head == nil }

// pipeQueue is a FIFO doubly linked list, used for a scope frame's
// finishers: select must return children in the order they yielded.
type pipeQueue struct {
	head, tail *listLink
}

func (q *pipeQueue) enqueue(l *listLink) {
	l.queue = q
	l.set = nil
	l.next = nil
	l.prev = q.tail
	if q.tail != nil {
		q.tail.next = l
	} else {
		q.head = l
	}
	q.tail = l
}

func (q *pipeQueue) sever(l *listLink) {
	if l.prev != nil {
		l.prev.next = l.next
	} else {
		q.head = l.next
	}
	if l.next != nil {
		l.next.prev = l.prev
	} else {
		q.tail = l.prev
	}
	l.prev, l.next, l.queue = nil, nil, nil
}

func (q *pipeQueue) dequeue() *listLink {
	l := q.head
	if l == nil {
		return nil
	}
	q.sever(l)
	return l
}

func (q *pipeQueue) empty() bool { return q.head == nil }

// sever removes l from whichever container currently holds it, without
// freeing it or touching its complement.
func sever(l *listLink) {
	if l == nil {
		return
	}
	switch {
	case l.set != nil:
		l.set.sever(l)
	case l.queue != nil:
		l.queue.sever(l)
	}
}

// free clears l's complement's back-pointer, if any, then clears l's own.
// l must already be unlinked from any container.
func free(l *listLink) {
	if l == nil {
		return
	}
	if l.complement != nil {
		l.complement.complement = nil
	}
	l.complement = nil
}

// unilaterallyDelist severs l from its container and frees it, returning
// the pipe it identified.
func unilaterallyDelist(l *listLink) *Pipe {
	if l == nil {
		return nil
	}
	p := l.peer
	sever(l)
	free(l)
	return p
}

// bilaterallyDequeue removes r and its complement from whatever containers
// currently hold them, returning the pipe the complement identified. Used
// to untether a source: r is the lone entry in the source's reader set,
// and its complement sits in the drain's blockers or finishers.
func bilaterallyDequeue(r *listLink) *Pipe {
	if r == nil {
		return nil
	}
	w := r.complement
	p := unilaterallyDelist(w)
	unilaterallyDelist(r)
	return p
}
