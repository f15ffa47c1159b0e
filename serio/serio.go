// Copyright (C) 2026 The weft authors. All Rights Reserved.

// Package serio carries simple scalar signal values over one port of a weft
// link. An [Input] turns every change of a word-sized value into a one-word
// packet; an [Output] latches the most recently received word. Together they
// extend a register-like signal across the link with best-effort semantics:
// only the latest value matters, and a lost update is repaired by the next
// change.
package serio

import (
	"github.com/weftproto/weft"
	"github.com/weftproto/weft/frame"
)

// Attach creates a scalar input/output pair and registers it on the given
// port of core, in both directions. Values written to the input with
// [Input.Set] appear at the far end's output; values sent by the far end
// appear at [Output.Get].
func Attach(core *weft.Core, port uint8) (*Input, *Output, error) {
	in := &Input{length: uint16(core.WordBytes())}
	out := new(Output)
	if err := core.AttachDownstream(port, in); err != nil {
		return nil, nil, err
	}
	if err := core.AttachUpstream(port, out); err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

// An Input offers a one-word packet whenever its current value differs from
// the last value the link consumed. It implements [weft.Source]. The offered
// value is latched on the first Peek: once an offer has been made it is never
// retracted, even if Set reverts the value, because the link may already have
// committed a frame header on its strength. A value change behind a pending
// offer is sent as a followup packet.
type Input struct {
	length    uint16
	cur, sent frame.Word

	pending frame.Word // value latched by Peek, valid while offered
	offered bool
}

// Set updates the current value of the input.
func (in *Input) Set(v frame.Word) { in.cur = v }

// Peek implements a method of the [weft.Source] interface.
func (in *Input) Peek() (weft.Flit, bool) {
	if !in.offered {
		if in.cur == in.sent {
			return weft.Flit{}, false
		}
		in.pending = in.cur
		in.offered = true
	}
	return weft.Flit{Data: in.pending, Last: true, Length: in.length}, true
}

// Advance implements a method of the [weft.Source] interface.
func (in *Input) Advance() {
	in.sent = in.pending
	in.offered = false
}

// An Output latches the last word delivered to it. It implements
// [weft.Sink] and is always ready.
type Output struct {
	val frame.Word
}

// Offer implements the [weft.Sink] interface.
func (o *Output) Offer(f weft.Flit) bool {
	if f.Last {
		o.val = f.Data
	}
	return true
}

// Get reports the most recently received value.
func (o *Output) Get() frame.Word { return o.val }
