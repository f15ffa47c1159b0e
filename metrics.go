// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

import "expvar"

// linkMetrics record link activity counters. The framing protocol never
// surfaces anomalies as errors, so these counters are the only visibility
// into silent recovery paths (resynchronization, timeouts, unrouted frames).
type linkMetrics struct {
	wordsSent        expvar.Int // words handed to the physical transport
	wordsReceived    expvar.Int // words accepted from the physical transport
	wordsDiscarded   expvar.Int // non-preamble words dropped while resynchronizing
	framesPacketized expvar.Int // frames fully serialized to the wire
	framesParsed     expvar.Int // frames fully recovered from the wire
	framesDelivered  expvar.Int // frames routed to a registered consumer
	framesUnrouted   expvar.Int // frames whose port matched no consumer
	framesTimedOut   expvar.Int // partial frames abandoned by the idle timeout
	linkResets       expvar.Int // link-down resets propagated to the stack

	emap *expvar.Map
}

var coreMetrics = newLinkMetrics()

func newLinkMetrics() *linkMetrics {
	lm := &linkMetrics{emap: new(expvar.Map)}
	lm.emap.Set("words_sent", &lm.wordsSent)
	lm.emap.Set("words_received", &lm.wordsReceived)
	lm.emap.Set("words_discarded", &lm.wordsDiscarded)
	lm.emap.Set("frames_packetized", &lm.framesPacketized)
	lm.emap.Set("frames_parsed", &lm.framesParsed)
	lm.emap.Set("frames_delivered", &lm.framesDelivered)
	lm.emap.Set("frames_unrouted", &lm.framesUnrouted)
	lm.emap.Set("frames_timed_out", &lm.framesTimedOut)
	lm.emap.Set("link_resets", &lm.linkResets)
	return lm
}
