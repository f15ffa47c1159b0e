// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

import (
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/taskgroup"
	"github.com/weftproto/weft/frame"
)

// A PHY is the word-oriented duplex transport a link runs over, together with
// its link-up status. The framing layer treats it as an external collaborator:
// it never retrains or resets the transport, it only reacts to Ready going
// false.
//
// The methods of an implementation must be safe to call once each per tick
// from the goroutine driving the link.
type PHY interface {
	// Ready reports whether the physical link is up. While Ready is false the
	// transport neither accepts nor delivers words.
	Ready() bool

	// Send offers w to the transmitter for this tick and reports whether it
	// was accepted.
	Send(w frame.Word) bool

	// Recv reports a word delivered by the receiver this tick, if any.
	Recv() (frame.Word, bool)
}

// Config carries the tunable parameters of a [Core]. The zero value selects
// the defaults noted on each field.
type Config struct {
	// WordBytes is the physical word width in bytes, at least
	// frame.MinWordBytes and at most 8. Default: 4.
	WordBytes int

	// TxDepth and RxDepth are the transmit and receive buffer depths in
	// words. Default: 8.
	TxDepth int
	RxDepth int

	// TimeoutTicks bounds how long the depacketizer waits for a frame to
	// complete before discarding it. Default: DefaultTimeoutTicks.
	TimeoutTicks int

	// NoResetOnLinkDown keeps the protocol stack's state across link flaps
	// instead of forcing every sub-component back to its initial state.
	// Leaving the reset enabled is recommended: without it a link flap can
	// strand the stack mid-frame.
	NoResetOnLinkDown bool
}

func (c *Config) setDefaults() error {
	if c.WordBytes == 0 {
		c.WordBytes = frame.MinWordBytes
	}
	if c.WordBytes < frame.MinWordBytes || c.WordBytes > 8 {
		return fmt.Errorf("word width %d bytes out of range %d..8", c.WordBytes, frame.MinWordBytes)
	}
	if c.TxDepth == 0 {
		c.TxDepth = 8
	}
	if c.RxDepth == 0 {
		c.RxDepth = 8
	}
	if c.TxDepth < 1 || c.RxDepth < 1 {
		return fmt.Errorf("invalid buffer depths tx=%d rx=%d", c.TxDepth, c.RxDepth)
	}
	if c.TimeoutTicks == 0 {
		c.TimeoutTicks = DefaultTimeoutTicks
	}
	if c.TimeoutTicks < 0 {
		return fmt.Errorf("invalid timeout %d ticks", c.TimeoutTicks)
	}
	return nil
}

// A Core multiplexes several logical channels over one physical link. On the
// transmit side an arbiter merges the attached downstream producers into one
// packetizer feeding the transmit buffer; on the receive side the receive
// buffer feeds a depacketizer whose packets are dispatched to the attached
// upstream consumers by port.
//
// Channels are attached with [Core.AttachDownstream] and
// [Core.AttachUpstream], once each per port and direction, before a single
// call to [Core.Finalize] freezes the registration tables. After Finalize the
// core is advanced either explicitly with [Core.Tick] or in the background
// with [Core.Start].
//
// A Core is tick-synchronous: all components advance in lockstep and no
// method of an attached endpoint is called outside Tick. A started core owns
// its tick loop; use [Core.Sync] to interact with attached endpoints while it
// runs.
type Core struct {
	cfg Config
	phy PHY

	down   []TaggedSource
	up     []RoutedSink
	dports mapset.Set[uint8]
	uports mapset.Set[uint8]
	final  bool

	arb *Arbiter
	pkt *Packetizer
	dep *Depacketizer
	dis *Dispatcher
	txq *Queue
	rxq *Queue

	wasUp bool

	μ     sync.Mutex // held while ticking or in Sync
	tasks *taskgroup.Group
	stop  chan struct{}
}

// New constructs an unfinalized core over the given transport.
func New(phy PHY, cfg Config) (*Core, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	return &Core{
		cfg:    cfg,
		phy:    phy,
		dports: mapset.New[uint8](),
		uports: mapset.New[uint8](),
		wasUp:  true,
	}, nil
}

// AttachDownstream registers src as the producer for the given port. The port
// value is stamped onto every packet from src, overriding whatever the
// producer set. It fails if the port is already registered downstream or the
// core is finalized.
func (c *Core) AttachDownstream(port uint8, src Source) error {
	if c.final {
		return fmt.Errorf("core is finalized")
	}
	if c.dports.Has(port) {
		return fmt.Errorf("downstream port %d already registered", port)
	}
	c.dports.Add(port)
	c.down = append(c.down, TaggedSource{Port: port, Source: src})
	return nil
}

// AttachUpstream registers sink as the consumer for packets arriving with the
// given port. It fails if the port is already registered upstream or the core
// is finalized.
func (c *Core) AttachUpstream(port uint8, sink Sink) error {
	if c.final {
		return fmt.Errorf("core is finalized")
	}
	if c.uports.Has(port) {
		return fmt.Errorf("upstream port %d already registered", port)
	}
	c.uports.Add(port)
	c.up = append(c.up, RoutedSink{Port: port, Sink: sink})
	return nil
}

// Finalize freezes the registration tables and builds the arbiter and
// dispatcher over them, in registration order. It must be called exactly
// once, after all attachments and before the first tick.
func (c *Core) Finalize() error {
	if c.final {
		return fmt.Errorf("core is already finalized")
	}
	c.final = true
	c.arb = NewArbiter(c.down)
	c.dis = NewDispatcher(c.up)
	c.pkt = NewPacketizer()
	c.dep = NewDepacketizer(c.cfg.WordBytes, c.cfg.TimeoutTicks)
	c.txq = NewQueue(c.cfg.TxDepth)
	c.rxq = NewQueue(c.cfg.RxDepth)
	return nil
}

// WordBytes reports the configured physical word width in bytes.
func (c *Core) WordBytes() int { return c.cfg.WordBytes }

// Metrics returns the metrics map shared by all links. It is safe for the
// caller to add additional metrics to the map.
func (c *Core) Metrics() *expvar.Map { return coreMetrics.emap }

// Tick advances every component of the core by one clock tick. It panics if
// the core has not been finalized.
func (c *Core) Tick() {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.tick()
}

func (c *Core) tick() {
	if !c.final {
		panic("core is not finalized")
	}
	if !c.phy.Ready() {
		if !c.cfg.NoResetOnLinkDown {
			if c.wasUp {
				coreMetrics.linkResets.Add(1)
			}
			c.reset()
		}
		c.wasUp = false
		return
	}
	c.wasUp = true

	// Transmit: producers -> arbiter -> packetizer -> buffer -> phy.
	c.pkt.Tick(c.arb, c.txq)
	if f, ok := c.txq.Peek(); ok {
		if c.phy.Send(f.Data) {
			coreMetrics.wordsSent.Add(1)
			c.txq.Advance()
		}
	}

	// Receive: phy -> buffer -> depacketizer -> consumers. A word arriving
	// while the buffer is full is lost; the depacketizer's timeout cleans up
	// the truncated frame.
	if w, ok := c.phy.Recv(); ok {
		coreMetrics.wordsReceived.Add(1)
		c.rxq.Offer(Flit{Data: w})
	}
	c.dep.Tick(c.rxq, c.dis)
}

// reset forces every stateful sub-component back to its initial state,
// discarding all in-flight words. No partial frame survives a reset.
func (c *Core) reset() {
	c.pkt.Reset()
	c.dep.Reset()
	c.arb.Reset()
	c.txq.Reset()
	c.rxq.Reset()
}

// Start begins driving the core in the background at one tick per period.
// It panics if the core is not finalized or is already started. Start does
// not block; call Stop to halt the loop, or Wait to block until it exits.
func (c *Core) Start(period time.Duration) *Core {
	if !c.final {
		panic("core is not finalized")
	}
	if c.tasks != nil {
		panic("core is already started")
	}
	g := taskgroup.New(nil)
	c.tasks = g
	stop := make(chan struct{})
	c.stop = stop

	g.Go(func() error {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return nil
			case <-t.C:
				c.Tick()
			}
		}
	})
	return c
}

// Stop halts the tick loop and blocks until it has exited. After Stop it is
// safe to restart the core.
func (c *Core) Stop() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.Wait()
}

// Wait blocks until the tick loop has exited. After Wait it is safe to
// restart the core.
func (c *Core) Wait() {
	if c.tasks == nil {
		return
	}
	c.tasks.Wait()
	c.tasks = nil
}

// Sync runs f with the tick loop excluded, so that a caller may interact with
// attached endpoints while the core is started.
func (c *Core) Sync(f func()) {
	c.μ.Lock()
	defer c.μ.Unlock()
	f()
}
