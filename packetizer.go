// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

import "github.com/weftproto/weft/frame"

// pktState is the control state of a Packetizer.
type pktState int

const (
	pktPreamble pktState = iota // waiting for a packet, emit preamble
	pktHeader                   // emit the port/length header word
	pktData                     // pass payload words through
)

// A Packetizer serializes a packet stream into a framed word stream: one
// preamble word, one header word carrying the packet's port and length, then
// the payload words. It is a perpetual state machine with no terminal state;
// Tick advances it by one clock tick.
//
// The packetizer performs no validation. A packet whose Length is zero or not
// a multiple of the link word width produces a malformed frame; avoiding that
// is the producer's responsibility.
type Packetizer struct {
	state  pktState
	port   uint8
	length uint16
}

// NewPacketizer constructs a packetizer in its initial state.
func NewPacketizer() *Packetizer { return new(Packetizer) }

// Reset forces p back to its initial state, discarding any frame in
// progress.
func (p *Packetizer) Reset() { p.state = pktPreamble }

// Tick advances the packetizer by one tick, consuming at most one flit from
// src and emitting at most one word to dst. The port and length of the packet
// are latched from the first offered flit when the preamble is accepted.
func (p *Packetizer) Tick(src Source, dst Sink) {
	switch p.state {
	case pktPreamble:
		// Idle until the producer offers a packet, then claim the line with
		// the preamble word. The flit itself is not consumed yet.
		f, ok := src.Peek()
		if !ok {
			return
		}
		if dst.Offer(Flit{Data: frame.Preamble}) {
			p.port, p.length = f.Port, f.Length
			p.state = pktHeader
		}

	case pktHeader:
		if dst.Offer(Flit{Data: frame.Header(p.port, p.length)}) {
			p.state = pktData
		}

	case pktData:
		// Pass-through: the producer's handshake is forwarded directly, no
		// buffering inside this state.
		f, ok := src.Peek()
		if !ok {
			return
		}
		if dst.Offer(Flit{Data: f.Data}) {
			src.Advance()
			if f.Last {
				coreMetrics.framesPacketized.Add(1)
				p.state = pktPreamble
			}
		}
	}
}
