// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

import (
	"fmt"

	"github.com/weftproto/weft/frame"
)

// depState is the control state of a Depacketizer.
type depState int

const (
	depPreamble depState = iota // discard words until the preamble appears
	depHeader                   // latch port and length from the header word
	depData                     // forward payload words
)

// DefaultTimeoutTicks is the idle timeout of a Depacketizer when the
// configuration leaves it zero.
const DefaultTimeoutTicks = 4096

// A Depacketizer parses a framed word stream back into a packet stream. It
// resynchronizes on the preamble word and recovers from stalled or corrupt
// input with a bounded idle timeout: if a frame is not fully delivered within
// the configured number of ticks after its preamble was recognized, the
// partial frame is silently discarded and the search for the next preamble
// starts over. The frames_timed_out metric counts these aborts.
//
// There is no checksum in the framing; a corrupted header produces a garbage
// packet. Preamble resynchronization and the idle timeout are the only
// self-healing mechanisms.
type Depacketizer struct {
	wordBytes int
	timeout   int

	state  depState
	port   uint8
	length uint16
	count  uint16
	timer  int
}

// NewDepacketizer constructs a depacketizer for a link with the given word
// width in bytes. A frame that is not completed within timeoutTicks ticks of
// its header being awaited is discarded; if timeoutTicks is zero,
// [DefaultTimeoutTicks] is used. It panics if wordBytes is out of range.
func NewDepacketizer(wordBytes, timeoutTicks int) *Depacketizer {
	if wordBytes < frame.MinWordBytes || wordBytes > 8 {
		panic(fmt.Sprintf("invalid word width %d bytes", wordBytes))
	}
	if timeoutTicks <= 0 {
		timeoutTicks = DefaultTimeoutTicks
	}
	return &Depacketizer{wordBytes: wordBytes, timeout: timeoutTicks}
}

// Reset forces d back to its initial preamble search, discarding any frame in
// progress.
func (d *Depacketizer) Reset() {
	d.state = depPreamble
	d.timer = 0
}

// Tick advances the depacketizer by one tick, consuming at most one word from
// src and emitting at most one flit to dst.
func (d *Depacketizer) Tick(src Source, dst Sink) {
	switch d.state {
	case depPreamble:
		d.timer = 0
		f, ok := src.Peek()
		if !ok {
			return
		}
		// Always ready: every word that is not the preamble is discarded.
		src.Advance()
		if f.Data == frame.Preamble {
			d.state = depHeader
		} else {
			coreMetrics.wordsDiscarded.Add(1)
		}

	case depHeader:
		if d.expired() {
			return
		}
		f, ok := src.Peek()
		if !ok {
			return
		}
		src.Advance()
		d.port, d.length = frame.ParseHeader(f.Data)
		d.count = 0
		d.state = depData

	case depData:
		if d.expired() {
			return
		}
		f, ok := src.Peek()
		if !ok {
			return
		}
		last := d.count == d.length/uint16(d.wordBytes)-1
		out := Flit{Data: f.Data, Last: last, Port: d.port, Length: d.length}
		if dst.Offer(out) {
			src.Advance()
			d.count++
			if last {
				coreMetrics.framesParsed.Add(1)
				d.state = depPreamble
			}
		}
	}
}

// expired counts one waiting tick and reports whether the idle timeout has
// been reached, returning the machine to the preamble search if so. The timer
// runs from the tick the preamble was recognized until the frame completes,
// so it bounds the total delivery time of a frame, not just gaps between
// words.
func (d *Depacketizer) expired() bool {
	d.timer++
	if d.timer < d.timeout {
		return false
	}
	coreMetrics.framesTimedOut.Add(1)
	d.state = depPreamble
	d.timer = 0
	return true
}
