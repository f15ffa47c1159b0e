// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

// A Queue is a bounded FIFO of flits used as the elastic buffer between a
// producer and a consumer running in the same tick domain. A Queue has
// exactly one producer and one consumer and is not safe for concurrent use.
type Queue struct {
	buf  []Flit
	head int
	n    int
}

// NewQueue constructs an empty queue holding at most depth flits.
// It panics if depth < 1.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		panic("queue depth must be positive")
	}
	return &Queue{buf: make([]Flit, depth)}
}

// Offer implements the [Sink] interface. It reports false when q is full.
func (q *Queue) Offer(f Flit) bool {
	if q.n == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = f
	q.n++
	return true
}

// Peek implements a method of the [Source] interface.
func (q *Queue) Peek() (Flit, bool) {
	if q.n == 0 {
		return Flit{}, false
	}
	return q.buf[q.head], true
}

// Advance implements a method of the [Source] interface.
// It panics if q is empty.
func (q *Queue) Advance() {
	if q.n == 0 {
		panic("advance on empty queue")
	}
	q.head = (q.head + 1) % len(q.buf)
	q.n--
}

// Len reports the number of flits queued in q.
func (q *Queue) Len() int { return q.n }

// Cap reports the total capacity of q.
func (q *Queue) Cap() int { return len(q.buf) }

// Reset discards all queued flits and leaves q empty.
func (q *Queue) Reset() { q.head, q.n = 0, 0 }
