// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

import "github.com/weftproto/weft/frame"

// A Flit is one word-sized unit of a packet stream, together with the
// metadata that frames it. Within a packet the flits are ordered; the final
// flit carries Last. Port and Length describe the packet the flit belongs to
// and are constant across all of its flits.
type Flit struct {
	Data   frame.Word // payload word
	Last   bool       // end-of-message marker
	Port   uint8      // logical channel, stamped by the link at registration
	Length uint16     // payload size of the whole packet, in bytes
}

// A Source produces the flits of a packet stream. The handshake is
// tick-synchronous: Peek reports the flit currently offered, if any, without
// consuming it, and Advance consumes it. Once a source has offered a flit it
// must keep offering the same flit on every subsequent tick until Advance is
// called; consumers rely on this to latch header fields before accepting
// payload words.
type Source interface {
	// Peek reports the currently offered flit, if any.
	Peek() (Flit, bool)

	// Advance consumes the flit most recently reported by Peek.
	// It must only be called after Peek has reported a flit.
	Advance()
}

// A Sink consumes the flits of a packet stream.
type Sink interface {
	// Offer presents f to the sink for the current tick and reports whether
	// the sink accepted it. If Offer reports false the producer must hold f
	// and offer it again on a later tick.
	Offer(f Flit) bool
}
