// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft_test

import (
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/google/go-cmp/cmp"
	"github.com/weftproto/weft"
	"github.com/weftproto/weft/frame"
)

// drainArbiter consumes flits from a until it reports none pending.
func drainArbiter(a *weft.Arbiter) []weft.Flit {
	var flits []weft.Flit
	for {
		f, ok := a.Peek()
		if !ok {
			return flits
		}
		a.Advance()
		flits = append(flits, f)
	}
}

func TestArbiterPortStamp(t *testing.T) {
	q := weft.NewQueue(2)
	// The producer claims port 77, but the arbiter stamps the port the
	// producer was registered under.
	fillQueue(t, q, packetFlits(77, []frame.Word{0xA, 0xB}, 4))
	arb := weft.NewArbiter([]weft.TaggedSource{{Port: 5, Source: q}})

	for _, f := range drainArbiter(arb) {
		if f.Port != 5 {
			t.Errorf("Flit %+v: port %d, want 5", f, f.Port)
		}
	}
}

func TestArbiterAtomicity(t *testing.T) {
	qa := weft.NewQueue(4)
	qb := weft.NewQueue(4)
	arb := weft.NewArbiter([]weft.TaggedSource{
		{Port: 1, Source: qa},
		{Port: 2, Source: qb},
	})

	fillQueue(t, qa, packetFlits(1, []frame.Word{0x10, 0x11, 0x12}, 4))

	// Consume the first flit, then let a competing producer show up while
	// the frame from qa is still in progress.
	f, ok := arb.Peek()
	if !ok || f.Data != 0x10 {
		t.Fatalf("Peek: got %+v, %v; want data 0x10", f, ok)
	}
	arb.Advance()
	fillQueue(t, qb, packetFlits(2, []frame.Word{0x20}, 4))

	var ports []uint8
	for _, f := range drainArbiter(arb) {
		ports = append(ports, f.Port)
	}
	want := []uint8{1, 1, 2} // qa finishes before qb is granted
	if diff := cmp.Diff(want, ports); diff != "" {
		t.Errorf("Grant order (-want, +got):\n%s", diff)
	}
}

func TestArbiterMidFrameStall(t *testing.T) {
	qa := weft.NewQueue(4)
	qb := weft.NewQueue(4)
	arb := weft.NewArbiter([]weft.TaggedSource{
		{Port: 1, Source: qa},
		{Port: 2, Source: qb},
	})

	// qa starts a frame but has not yet produced its closing flit.
	fillQueue(t, qa, []weft.Flit{{Data: 0x10, Length: 8}})
	fillQueue(t, qb, packetFlits(2, []frame.Word{0x20}, 4))

	if f, ok := arb.Peek(); !ok || f.Port != 1 {
		t.Fatalf("Peek: got %+v, %v; want port 1", f, ok)
	}
	arb.Advance()

	// The grant is held while qa is mid-frame, even though qb is ready.
	if f, ok := arb.Peek(); ok {
		t.Fatalf("Peek during stall returned %+v, want none", f)
	}

	fillQueue(t, qa, []weft.Flit{{Data: 0x11, Last: true, Length: 8}})
	var ports []uint8
	for _, f := range drainArbiter(arb) {
		ports = append(ports, f.Port)
	}
	if diff := cmp.Diff([]uint8{1, 2}, ports); diff != "" {
		t.Errorf("Grant order after stall (-want, +got):\n%s", diff)
	}
}

// This test depends on the round-robin grant policy: after a frame completes,
// the scan resumes from the next producer in registration order.
func TestArbiterRoundRobin(t *testing.T) {
	qa := weft.NewQueue(4)
	qb := weft.NewQueue(4)
	arb := weft.NewArbiter([]weft.TaggedSource{
		{Port: 1, Source: qa},
		{Port: 2, Source: qb},
	})
	for i := range 2 {
		fillQueue(t, qa, packetFlits(1, []frame.Word{frame.Word(0x10 + i)}, 4))
		fillQueue(t, qb, packetFlits(2, []frame.Word{frame.Word(0x20 + i)}, 4))
	}

	var ports []uint8
	for _, f := range drainArbiter(arb) {
		ports = append(ports, f.Port)
	}
	if diff := cmp.Diff([]uint8{1, 2, 1, 2}, ports); diff != "" {
		t.Errorf("Grant order (-want, +got):\n%s", diff)
	}
}

func TestArbiterAdvancePanics(t *testing.T) {
	arb := weft.NewArbiter([]weft.TaggedSource{{Port: 1, Source: weft.NewQueue(1)}})
	mtest.MustPanic(t, func() { arb.Advance() })
}

func TestDispatcherRouting(t *testing.T) {
	q1 := weft.NewQueue(4)
	q2 := weft.NewQueue(4)
	dis := weft.NewDispatcher([]weft.RoutedSink{
		{Port: 1, Sink: q1},
		{Port: 2, Sink: q2},
	})

	for _, f := range packetFlits(2, []frame.Word{0xA, 0xB}, 4) {
		if !dis.Offer(f) {
			t.Fatalf("Offer(%+v) rejected", f)
		}
	}
	if got := drainWords(q2); len(got) != 2 {
		t.Errorf("Port 2 received %v, want 2 words", got)
	}
	if got := drainWords(q1); len(got) != 0 {
		t.Errorf("Port 1 received %v, want none", got)
	}
}

func TestDispatcherUnmatched(t *testing.T) {
	q1 := weft.NewQueue(4)
	dis := weft.NewDispatcher([]weft.RoutedSink{{Port: 1, Sink: q1}})

	// A frame for an unregistered port is swallowed whole so it cannot
	// block the link, and the next frame routes normally.
	for _, f := range packetFlits(9, []frame.Word{0xA, 0xB}, 4) {
		if !dis.Offer(f) {
			t.Fatalf("Offer(%+v) rejected", f)
		}
	}
	if got := drainWords(q1); len(got) != 0 {
		t.Errorf("Port 1 received %v, want none", got)
	}

	for _, f := range packetFlits(1, []frame.Word{0xC}, 4) {
		if !dis.Offer(f) {
			t.Fatalf("Offer(%+v) rejected", f)
		}
	}
	if diff := cmp.Diff([]frame.Word{0xC}, drainWords(q1)); diff != "" {
		t.Errorf("Port 1 words (-want, +got):\n%s", diff)
	}
}

// A frame abandoned by the depacketizer's timeout never produces an
// end-of-message flit; the frame after it must still route by its own port.
func TestDispatcherAfterTimeout(t *testing.T) {
	const timeout = 8
	col1 := &collector{stall: true}
	col2 := new(collector)
	dis := weft.NewDispatcher([]weft.RoutedSink{
		{Port: 1, Sink: col1},
		{Port: 2, Sink: col2},
	})
	dep := weft.NewDepacketizer(4, timeout)

	wire := weft.NewQueue(8)
	fillQueue(t, wire, []weft.Flit{
		{Data: frame.Preamble},
		{Data: frame.Header(1, 4)},
		{Data: 0x11111111}, // consumer 1 never accepts; the frame times out
	})
	for range 3 * timeout {
		dep.Tick(wire, dis)
	}

	fillQueue(t, wire, []weft.Flit{
		{Data: frame.Preamble},
		{Data: frame.Header(2, 4)},
		{Data: 0x33333333},
	})
	for range 3 * timeout {
		dep.Tick(wire, dis)
	}

	want := []packet{{Port: 2, Length: 4, Payload: []frame.Word{0x33333333}}}
	if diff := cmp.Diff(want, col2.got); diff != "" {
		t.Errorf("Consumer 2 packets (-want, +got):\n%s", diff)
	}
	if len(col1.got) != 0 {
		t.Errorf("Consumer 1 received %+v, want nothing", col1.got)
	}
}

func TestDispatcherBackpressure(t *testing.T) {
	q1 := weft.NewQueue(1)
	dis := weft.NewDispatcher([]weft.RoutedSink{{Port: 1, Sink: q1}})

	flits := packetFlits(1, []frame.Word{0xA, 0xB}, 4)
	if !dis.Offer(flits[0]) {
		t.Fatal("First flit rejected")
	}
	if dis.Offer(flits[1]) {
		t.Error("Second flit accepted while the sink is full")
	}
	drainWords(q1)
	if !dis.Offer(flits[1]) {
		t.Error("Second flit rejected after the sink drained")
	}
	if diff := cmp.Diff([]frame.Word{0xB}, drainWords(q1)); diff != "" {
		t.Errorf("Port 1 words (-want, +got):\n%s", diff)
	}
}
