// Copyright (C) 2026 The weft authors. All Rights Reserved.

// Package phy provides implementations of the weft.PHY interface.
package phy

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"github.com/creachadair/taskgroup"
	"github.com/weftproto/weft"
	"github.com/weftproto/weft/frame"
)

// Pipe constructs a connected pair of in-memory transports. Words sent to A
// are delivered to B and vice versa, with depth words of buffering per
// direction.
//
// The two ports share a lock, so a pipe may connect two links driven from
// different goroutines. Unlike a real wire a full pipe exerts backpressure on
// Send rather than losing words.
func Pipe(depth int) (A, B *Port) {
	μ := new(sync.Mutex)
	a := &Port{μ: μ, up: true, inbox: weft.NewQueue(depth)}
	b := &Port{μ: μ, up: true, inbox: weft.NewQueue(depth)}
	a.peer, b.peer = b, a
	return a, b
}

// A Port is one end of a [Pipe].
type Port struct {
	μ     *sync.Mutex // shared by both ends
	up    bool
	peer  *Port
	inbox *weft.Queue
}

// Ready implements a method of the [weft.PHY] interface.
func (p *Port) Ready() bool {
	p.μ.Lock()
	defer p.μ.Unlock()
	return p.up
}

// SetReady changes the link-up status of p. Taking a port down discards the
// words queued toward it; words sent while the far end is down are lost, as
// they would be on a real wire.
func (p *Port) SetReady(ok bool) {
	p.μ.Lock()
	defer p.μ.Unlock()
	p.up = ok
	if !ok {
		p.inbox.Reset()
	}
}

// Send implements a method of the [weft.PHY] interface.
func (p *Port) Send(w frame.Word) bool {
	p.μ.Lock()
	defer p.μ.Unlock()
	if !p.up {
		return false
	}
	if !p.peer.up {
		return true // accepted and lost on the wire
	}
	return p.peer.inbox.Offer(weft.Flit{Data: w})
}

// Recv implements a method of the [weft.PHY] interface.
func (p *Port) Recv() (frame.Word, bool) {
	p.μ.Lock()
	defer p.μ.Unlock()
	if !p.up {
		return 0, false
	}
	f, ok := p.inbox.Peek()
	if !ok {
		return 0, false
	}
	p.inbox.Advance()
	return f.Data, true
}

// IO adapts a byte stream to a word transport, encoding each word as
// wordBytes big-endian bytes. Reads are driven by a background task so that
// Recv never blocks the tick loop; the task exits when rwc reports an error
// or is closed, taking the link down.
func IO(rwc io.ReadWriteCloser, wordBytes int) *IOPort {
	p := &IOPort{
		size: wordBytes,
		w:    bufio.NewWriter(rwc),
		c:    rwc,
		in:   make(chan frame.Word, 64),
		quit: make(chan struct{}),
	}
	p.up.Store(true)

	p.tasks = taskgroup.New(nil)
	p.tasks.Go(func() error {
		defer p.up.Store(false)
		defer close(p.in)
		r := bufio.NewReader(rwc)
		buf := make([]byte, wordBytes)
		for {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil
			}
			// The receiver may have stopped draining; Close must still be
			// able to unpark the task while the channel is full.
			select {
			case p.in <- frame.ParseWord(buf, wordBytes):
			case <-p.quit:
				return nil
			}
		}
	})
	return p
}

// An IOPort sends and receives words on an underlying byte stream.
type IOPort struct {
	size    int
	w       *bufio.Writer
	c       io.Closer
	in      chan frame.Word
	quit    chan struct{}
	stopped sync.Once
	up      atomic.Bool
	tasks   *taskgroup.Group
	buf     []byte // scratch for Send
}

// Ready implements a method of the [weft.PHY] interface.
func (p *IOPort) Ready() bool { return p.up.Load() }

// Send implements a method of the [weft.PHY] interface. A write error takes
// the link down and the word is lost.
func (p *IOPort) Send(w frame.Word) bool {
	if !p.up.Load() {
		return false
	}
	p.buf = frame.AppendWord(p.buf[:0], w, p.size)
	if _, err := p.w.Write(p.buf); err != nil {
		p.up.Store(false)
		return false
	}
	if err := p.w.Flush(); err != nil {
		p.up.Store(false)
		return false
	}
	return true
}

// Recv implements a method of the [weft.PHY] interface.
func (p *IOPort) Recv() (frame.Word, bool) {
	select {
	case w, ok := <-p.in:
		if !ok {
			return 0, false
		}
		return w, true
	default:
		return 0, false
	}
}

// Close closes the underlying stream and blocks until the reader task has
// exited. After Close the link reports not-ready.
func (p *IOPort) Close() error {
	p.stopped.Do(func() { close(p.quit) })
	err := p.c.Close()
	p.tasks.Wait()
	return err
}
