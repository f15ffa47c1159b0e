// Copyright (C) 2026 The weft authors. All Rights Reserved.

// Package weft implements a link-layer multiplexing protocol that lets
// several independent logical channels share one narrow word-oriented serial
// transport.
//
// Messages are framed on the wire as a fixed preamble word, a header word
// carrying an 8-bit port and a 16-bit payload length in bytes, and the
// payload words. The protocol is best-effort: there is no checksum and no
// retransmission. A receiver recovers from corrupt or stalled input by
// resynchronizing on the preamble and by abandoning frames that do not
// complete within a bounded idle timeout.
//
// # Links
//
// The core type defined by this package is the [Core]. A core owns one
// transmit chain (arbiter, packetizer, transmit buffer) and one receive chain
// (receive buffer, depacketizer, dispatcher) over a [PHY], the word-oriented
// duplex transport.
//
// Logical channels attach to a core as numbered ports before the core is
// finalized:
//
//	core, err := weft.New(phy, weft.Config{})
//	...
//	core.AttachDownstream(3, producer) // packets from producer go out on port 3
//	core.AttachUpstream(3, consumer)   // packets arriving on port 3 go to consumer
//	if err := core.Finalize(); err != nil {
//	   log.Fatalf("Finalize: %v", err)
//	}
//
// Attaching the same port twice in the same direction is a configuration
// error. The port registered for a producer is stamped onto every packet it
// sends, regardless of the port value the producer set itself.
//
// # Ticks
//
// The protocol stack is fully synchronous: every component advances in
// lockstep, once per tick, and suspension is expressed purely through the
// valid/ready handshake of the [Source] and [Sink] interfaces. A finalized
// core is advanced explicitly:
//
//	core.Tick()
//
// or driven in the background at a fixed rate:
//
//	core.Start(10 * time.Microsecond)
//	defer core.Stop()
//
// While a core is started, use [Core.Sync] to interact with attached
// endpoints without racing the tick loop.
//
// # Packet atomicity
//
// Once a producer's frame has started, the arbiter grants that producer
// exclusive access to the link until its end-of-message flit is consumed.
// Frames from different producers are never interleaved; their relative order
// is whatever the round-robin arbitration decides.
//
// # Link-down handling
//
// When the transport reports not-ready, every stateful component is forced
// back to its initial state and the buffers are cleared, so a link flap
// cannot strand the stack mid-frame. No partial frame from before the reset
// is ever delivered. The reset can be disabled per deployment with
// [Config.NoResetOnLinkDown].
//
// # Metrics
//
// Protocol anomalies are never surfaced as errors. Links instead maintain
// shared expvar counters, available from the [Core.Metrics] method:
//
//   - words_sent: counter of words handed to the transport
//   - words_received: counter of words accepted from the transport
//   - words_discarded: counter of words dropped during resynchronization
//   - frames_packetized: counter of frames fully serialized
//   - frames_parsed: counter of frames fully recovered
//   - frames_delivered: counter of frames routed to a consumer
//   - frames_unrouted: counter of frames whose port matched no consumer
//   - frames_timed_out: counter of partial frames dropped by the idle timeout
//   - link_resets: counter of link-down resets
//
// # Related packages
//
// Package [github.com/weftproto/weft/frame] defines the wire encoding and
// payload layouts. Package [github.com/weftproto/weft/phy] provides PHY
// implementations. Package [github.com/weftproto/weft/multilane] replicates
// the packetizer/depacketizer pair per sub-channel for bus protocols that map
// each sub-channel onto a dedicated lane. Package
// [github.com/weftproto/weft/serio] carries simple scalar signal updates over
// a port.
package weft
