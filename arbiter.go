// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

// An Arbiter merges several port-tagged packet streams into the single stream
// consumed by one Packetizer. It implements [Source]; the packetizer pulls
// from it without knowing how many producers sit behind it.
//
// Packet atomicity is the non-negotiable invariant: once a producer's frame
// has started, the arbiter keeps granting that producer exclusively until its
// end-of-message flit is consumed. The receiving side has no way to detect
// interleaved frames, so the grant is never revoked mid-packet.
//
// Selection among waiting producers is round-robin: after a frame completes
// the scan resumes at the next producer, so no producer can starve the
// others.
//
// The arbiter stamps the port registered for each producer onto every flit it
// forwards, overriding whatever port value the producer set.
type Arbiter struct {
	srcs []TaggedSource

	cur     int  // producer holding the grant, meaningful if granted
	granted bool // a producer holds the grant
	inFrame bool // the granted producer's frame has started
}

// A TaggedSource pairs a producer stream with its registered port.
type TaggedSource struct {
	Port   uint8
	Source Source
}

// NewArbiter constructs an arbiter over the given producers.
func NewArbiter(srcs []TaggedSource) *Arbiter {
	return &Arbiter{srcs: srcs}
}

// Peek implements a method of the [Source] interface. The grant is latched on
// the first Peek that finds a waiting producer and held until that producer's
// frame completes.
func (a *Arbiter) Peek() (Flit, bool) {
	if a.granted {
		f, ok := a.srcs[a.cur].Source.Peek()
		if ok {
			f.Port = a.srcs[a.cur].Port
			return f, true
		}
		if a.inFrame {
			// Mid-frame stall: hold the grant until the producer resumes.
			return Flit{}, false
		}
		a.granted = false // producer withdrew before its frame started
	}
	n := len(a.srcs)
	for k := range n {
		i := (a.cur + k) % n
		if f, ok := a.srcs[i].Source.Peek(); ok {
			a.cur, a.granted = i, true
			f.Port = a.srcs[i].Port
			return f, true
		}
	}
	return Flit{}, false
}

// Advance implements a method of the [Source] interface, consuming one flit
// from the granted producer. Consuming an end-of-message flit releases the
// grant and rotates the scan origin past the producer.
func (a *Arbiter) Advance() {
	f, ok := a.srcs[a.cur].Source.Peek()
	if !a.granted || !ok {
		panic("advance without a granted flit")
	}
	a.srcs[a.cur].Source.Advance()
	if f.Last {
		a.granted, a.inFrame = false, false
		a.cur = (a.cur + 1) % len(a.srcs)
	} else {
		a.inFrame = true
	}
}

// Reset releases the grant and restarts the scan. The attached producers are
// not touched; resetting them is their owner's concern.
func (a *Arbiter) Reset() {
	a.cur = 0
	a.granted, a.inFrame = false, false
}
