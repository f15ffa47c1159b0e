// Copyright (C) 2026 The weft authors. All Rights Reserved.

package multilane_test

import (
	"strings"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/weftproto/weft"
	"github.com/weftproto/weft/frame"
	"github.com/weftproto/weft/multilane"
	"github.com/weftproto/weft/phy"
)

// A bus is a master/slave pair of link endpoints over per-channel pipes, with
// a queue attached to every sub-channel endpoint.
type bus struct {
	m, s   *multilane.Link
	mPorts map[string]*phy.Port // master-side lane transports
	sPorts map[string]*phy.Port
	mq, sq map[string]*weft.Queue // per-channel endpoint queues
}

func newBus(t *testing.T, p multilane.Profile) *bus {
	t.Helper()
	b := &bus{
		mPorts: make(map[string]*phy.Port),
		sPorts: make(map[string]*phy.Port),
		mq:     make(map[string]*weft.Queue),
		sq:     make(map[string]*weft.Queue),
	}
	mLanes := make(map[string]weft.PHY)
	sLanes := make(map[string]weft.PHY)
	for _, sc := range p.Channels {
		pm, ps := phy.Pipe(16)
		b.mPorts[sc.Name], b.sPorts[sc.Name] = pm, ps
		mLanes[sc.Name], sLanes[sc.Name] = pm, ps
	}

	var err error
	b.m, err = multilane.New(multilane.Master, p, mLanes, multilane.Config{})
	if err != nil {
		t.Fatalf("New master: %v", err)
	}
	b.s, err = multilane.New(multilane.Slave, p, sLanes, multilane.Config{})
	if err != nil {
		t.Fatalf("New slave: %v", err)
	}

	for _, sc := range p.Channels {
		b.mq[sc.Name] = weft.NewQueue(16)
		b.sq[sc.Name] = weft.NewQueue(16)
		var em, es error
		if sc.Dir == multilane.ToSlave {
			em = b.m.AttachSource(sc.Name, b.mq[sc.Name])
			es = b.s.AttachSink(sc.Name, b.sq[sc.Name])
		} else {
			em = b.m.AttachSink(sc.Name, b.mq[sc.Name])
			es = b.s.AttachSource(sc.Name, b.sq[sc.Name])
		}
		if em != nil || es != nil {
			t.Fatalf("Attach %q: master %v, slave %v", sc.Name, em, es)
		}
	}
	if err := b.m.Finalize(); err != nil {
		t.Fatalf("Finalize master: %v", err)
	}
	if err := b.s.Finalize(); err != nil {
		t.Fatalf("Finalize slave: %v", err)
	}
	return b
}

func (b *bus) tickUntil(t *testing.T, done func() bool) {
	t.Helper()
	for range 1000 {
		if done() {
			return
		}
		b.m.Tick()
		b.s.Tick()
	}
	t.Fatal("Condition not reached within the tick budget")
}

// checkBeat verifies that q holds exactly one single-beat packet whose fields
// unpack to want under lay, and consumes it.
func checkBeat(t *testing.T, q *weft.Queue, lay frame.Layout, want []frame.Word) {
	t.Helper()
	f, ok := q.Peek()
	if !ok {
		t.Fatal("No beat delivered")
	}
	q.Advance()
	if !f.Last {
		t.Errorf("Beat %+v is not a whole packet", f)
	}
	if got := int(f.Length); got != lay.WordBytes() {
		t.Errorf("Beat length %d, want %d", got, lay.WordBytes())
	}
	vals := lay.Unpack(f.Data)
	for i, w := range want {
		if vals[i] != w {
			t.Errorf("Field %q: got %x, want %x", lay[i].Name, vals[i], w)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Queue holds %d extra beats", q.Len())
	}
}

func TestLiteBusTransaction(t *testing.T) {
	p := multilane.LiteBus(32, 32)
	b := newBus(t, p)
	awLay := p.Channels[0].Layout
	wLay := p.Channels[1].Layout
	arLay := p.Channels[2].Layout
	bLay := p.Channels[3].Layout
	rLay := p.Channels[4].Layout

	// Write: the master posts address and data beats, the slave answers on b.
	b.mq["aw"].Offer(weft.Flit{Data: awLay.Pack([]frame.Word{0x1000})})
	b.mq["w"].Offer(weft.Flit{Data: wLay.Pack([]frame.Word{0xAABBCCDD, 0xF})})
	b.tickUntil(t, func() bool { return b.sq["aw"].Len() > 0 && b.sq["w"].Len() > 0 })

	checkBeat(t, b.sq["aw"], awLay, []frame.Word{0x1000})
	checkBeat(t, b.sq["w"], wLay, []frame.Word{0xAABBCCDD, 0xF})

	b.sq["b"].Offer(weft.Flit{Data: bLay.Pack([]frame.Word{0})})
	b.tickUntil(t, func() bool { return b.mq["b"].Len() > 0 })
	checkBeat(t, b.mq["b"], bLay, []frame.Word{0})

	// Read: address toward the slave, data and status back.
	b.mq["ar"].Offer(weft.Flit{Data: arLay.Pack([]frame.Word{0x1004})})
	b.tickUntil(t, func() bool { return b.sq["ar"].Len() > 0 })
	checkBeat(t, b.sq["ar"], arLay, []frame.Word{0x1004})

	b.sq["r"].Offer(weft.Flit{Data: rLay.Pack([]frame.Word{0x11223344, 0})})
	b.tickUntil(t, func() bool { return b.mq["r"].Len() > 0 })
	checkBeat(t, b.mq["r"], rLay, []frame.Word{0x11223344, 0})
}

// Sub-channels flow independently: a response lane under backpressure does
// not block request lanes.
func TestLiteBusIndependentLanes(t *testing.T) {
	p := multilane.LiteBus(32, 32)
	b := newBus(t, p)
	awLay := p.Channels[0].Layout
	rLay := p.Channels[4].Layout

	// Swamp the r lane so its buffering fills up.
	for range 64 {
		b.sq["r"].Offer(weft.Flit{Data: rLay.Pack([]frame.Word{0xEE, 0})})
	}
	for range 50 {
		b.m.Tick()
		b.s.Tick()
	}

	b.mq["aw"].Offer(weft.Flit{Data: awLay.Pack([]frame.Word{0x2000})})
	b.tickUntil(t, func() bool { return b.sq["aw"].Len() > 0 })
	checkBeat(t, b.sq["aw"], awLay, []frame.Word{0x2000})
}

func TestLiteBusLaneReset(t *testing.T) {
	p := multilane.LiteBus(32, 32)
	b := newBus(t, p)
	awLay := p.Channels[0].Layout

	// Let a frame get partway onto the aw lane, then flap that lane.
	b.mq["aw"].Offer(weft.Flit{Data: awLay.Pack([]frame.Word{0x3000})})
	b.m.Tick()
	b.s.Tick()
	b.mPorts["aw"].SetReady(false)
	b.sPorts["aw"].SetReady(false)
	for range 5 {
		b.m.Tick()
		b.s.Tick()
	}
	if b.sq["aw"].Len() != 0 {
		t.Fatalf("Beat delivered across a lane reset")
	}

	// The producer was not consumed, so after recovery the whole frame is
	// resent and the beat arrives exactly once.
	b.mPorts["aw"].SetReady(true)
	b.sPorts["aw"].SetReady(true)
	b.tickUntil(t, func() bool { return b.sq["aw"].Len() > 0 })
	for range 50 {
		b.m.Tick()
		b.s.Tick()
	}
	checkBeat(t, b.sq["aw"], awLay, []frame.Word{0x3000})
}

func TestNewErrors(t *testing.T) {
	bad := multilane.Profile{
		Name: "bad",
		Channels: []multilane.SubChannel{
			{Name: "x", Dir: multilane.ToSlave, Layout: frame.DataLayout(8)},
			{Name: "x", Dir: multilane.ToSlave, Layout: frame.DataLayout(8)},
			{Name: "y", Dir: multilane.ToMaster, Layout: frame.Layout{}},
		},
	}
	pm, _ := phy.Pipe(4)
	_, err := multilane.New(multilane.Master, bad, map[string]weft.PHY{
		"x":     pm,
		"stray": pm,
	}, multilane.Config{Depth: -1, TimeoutTicks: -4})
	if err == nil {
		t.Fatal("New accepted an invalid configuration")
	}
	// Every problem is reported, not just the first.
	for _, want := range []string{
		"declared twice", `"y"`, `"stray"`, "no lane",
		"invalid lane depth", "invalid timeout",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error %q does not mention %q", err, want)
		}
	}
}

func TestAttachErrors(t *testing.T) {
	p := multilane.LiteBus(32, 32)
	lanes := make(map[string]weft.PHY)
	for _, sc := range p.Channels {
		pm, _ := phy.Pipe(4)
		lanes[sc.Name] = pm
	}
	m, err := multilane.New(multilane.Master, p, lanes, multilane.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	q := weft.NewQueue(1)
	if err := m.AttachSource("b", q); err == nil {
		t.Error("AttachSource on an inbound sub-channel was not rejected")
	}
	if err := m.AttachSink("aw", q); err == nil {
		t.Error("AttachSink on an outbound sub-channel was not rejected")
	}
	if err := m.AttachSource("nope", q); err == nil {
		t.Error("AttachSource on an unknown sub-channel was not rejected")
	}
	if err := m.AttachSource("aw", q); err != nil {
		t.Fatalf("AttachSource: %v", err)
	}
	if err := m.AttachSource("aw", q); err == nil {
		t.Error("Duplicate AttachSource was not rejected")
	}

	// Finalize reports every missing attachment together.
	err = m.Finalize()
	if err == nil {
		t.Fatal("Finalize succeeded with missing attachments")
	}
	for _, want := range []string{`"w"`, `"ar"`, `"b"`, `"r"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error %q does not mention %q", err, want)
		}
	}

	mtest.MustPanic(t, func() { m.Tick() })
}
