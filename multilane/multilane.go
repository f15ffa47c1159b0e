// Copyright (C) 2026 The weft authors. All Rights Reserved.

// Package multilane replicates the weft framing per sub-channel for bus
// protocols whose sub-channels flow independently, mapping each sub-channel
// onto its own dedicated physical lane.
//
// With a lane per sub-channel there is no contention, so no arbiter or
// dispatcher is needed and no sub-channel can block another behind the link.
// The two endpoints of a bus are mirror images: the master packetizes the
// request-direction sub-channels and depacketizes the response-direction
// ones, the slave does the opposite.
//
// Every flit offered to an outbound sub-channel is framed as its own
// single-word packet, matching the beat-per-transfer shape of split
// request/response buses.
package multilane

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/weftproto/weft"
	"github.com/weftproto/weft/frame"
)

// Direction tells which way a sub-channel flows.
type Direction int

const (
	ToSlave  Direction = iota // carried from master to slave (requests)
	ToMaster                  // carried from slave to master (responses)
)

// A SubChannel describes one independently-flowing sub-channel of a bus.
type SubChannel struct {
	Name   string
	Dir    Direction
	Layout frame.Layout // payload fields of one beat; fixes the lane word width
}

// A Profile is the set of sub-channels making up a bus protocol. The same
// profile is used to build both the master and the slave endpoint.
type Profile struct {
	Name     string
	Channels []SubChannel
}

func (p Profile) check() error {
	var errs *multierror.Error
	if len(p.Channels) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("profile %q has no sub-channels", p.Name))
	}
	if len(p.Channels) > 256 {
		errs = multierror.Append(errs, fmt.Errorf("profile %q has %d sub-channels, exceeds 256", p.Name, len(p.Channels)))
	}
	seen := make(map[string]bool, len(p.Channels))
	for _, sc := range p.Channels {
		if sc.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("profile %q: sub-channel with empty name", p.Name))
			continue
		}
		if seen[sc.Name] {
			errs = multierror.Append(errs, fmt.Errorf("sub-channel %q declared twice", sc.Name))
		}
		seen[sc.Name] = true
		if err := sc.Layout.Check(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("sub-channel %q: %w", sc.Name, err))
		}
	}
	return errs.ErrorOrNil()
}

// LiteBus returns the profile of a memory-mapped lite bus with split
// address/write/read/response sub-channels: aw, w and ar toward the slave,
// b and r toward the master.
func LiteBus(addrBits, dataBits int) Profile {
	return Profile{
		Name: "litebus",
		Channels: []SubChannel{
			{Name: "aw", Dir: ToSlave, Layout: frame.Layout{{Name: "addr", Bits: addrBits}}},
			{Name: "w", Dir: ToSlave, Layout: frame.Layout{{Name: "data", Bits: dataBits}, {Name: "strb", Bits: dataBits / 8}}},
			{Name: "ar", Dir: ToSlave, Layout: frame.Layout{{Name: "addr", Bits: addrBits}}},
			{Name: "b", Dir: ToMaster, Layout: frame.Layout{{Name: "resp", Bits: 2}}},
			{Name: "r", Dir: ToMaster, Layout: frame.Layout{{Name: "data", Bits: dataBits}, {Name: "resp", Bits: 2}}},
		},
	}
}

// Role tells which endpoint of the bus a link implements.
type Role int

const (
	Master Role = iota
	Slave
)

// Config carries the tunable parameters of a [Link]. The zero value selects
// the defaults noted on each field.
type Config struct {
	// Depth is the per-lane buffer depth in words. Default: 8.
	Depth int

	// TimeoutTicks bounds frame delivery per lane, as for a single-channel
	// core. Default: weft.DefaultTimeoutTicks.
	TimeoutTicks int

	// NoResetOnLinkDown keeps lane state across link flaps instead of
	// resetting the lane's framing and buffers.
	NoResetOnLinkDown bool
}

// A Link is one endpoint of a multi-lane bus: per sub-channel, either a
// packetizer and transmit buffer (outbound at this role) or a receive buffer
// and depacketizer (inbound), bound to the sub-channel's dedicated lane.
//
// Attach an endpoint to every sub-channel with [Link.AttachSource] (outbound)
// or [Link.AttachSink] (inbound), then call [Link.Finalize] once, then drive
// the link with [Link.Tick]. Like a weft.Core, a Link is tick-synchronous and
// not safe for concurrent use.
type Link struct {
	role   Role
	lanes  []*lane
	byName map[string]int
	final  bool
}

type lane struct {
	sub      SubChannel
	phy      weft.PHY
	outbound bool
	noReset  bool

	// Outbound lanes packetize; inbound lanes depacketize.
	pkt *weft.Packetizer
	txq *weft.Queue
	src weft.Source

	dep *weft.Depacketizer
	rxq *weft.Queue
	dst weft.Sink
}

// New constructs a link endpoint with the given role over the profile p.
// Lanes maps each sub-channel name to its dedicated transport; every
// sub-channel needs exactly one lane. All configuration problems are reported
// together.
func New(role Role, p Profile, lanes map[string]weft.PHY, cfg Config) (*Link, error) {
	var errs *multierror.Error
	if err := p.check(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.Depth == 0 {
		cfg.Depth = 8
	}
	if cfg.Depth < 1 {
		errs = multierror.Append(errs, fmt.Errorf("invalid lane depth %d", cfg.Depth))
		cfg.Depth = 8 // keep lane construction safe while errors accumulate
	}
	if cfg.TimeoutTicks < 0 {
		errs = multierror.Append(errs, fmt.Errorf("invalid timeout %d ticks", cfg.TimeoutTicks))
		cfg.TimeoutTicks = 0
	}
	for name := range lanes {
		if !hasChannel(p, name) {
			errs = multierror.Append(errs, fmt.Errorf("lane %q matches no sub-channel", name))
		}
	}

	l := &Link{role: role, byName: make(map[string]int, len(p.Channels))}
	for i, sc := range p.Channels {
		phy, ok := lanes[sc.Name]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("sub-channel %q has no lane", sc.Name))
			continue
		}
		ln := &lane{
			sub:      sc,
			phy:      phy,
			outbound: (sc.Dir == ToSlave) == (role == Master),
			noReset:  cfg.NoResetOnLinkDown,
		}
		if ln.outbound {
			ln.pkt = weft.NewPacketizer()
			ln.txq = weft.NewQueue(cfg.Depth)
		} else {
			ln.dep = weft.NewDepacketizer(sc.Layout.WordBytes(), cfg.TimeoutTicks)
			ln.rxq = weft.NewQueue(cfg.Depth)
		}
		l.byName[sc.Name] = i
		l.lanes = append(l.lanes, ln)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return l, nil
}

func hasChannel(p Profile, name string) bool {
	for _, sc := range p.Channels {
		if sc.Name == name {
			return true
		}
	}
	return false
}

// AttachSource registers src as the producer for the named sub-channel, which
// must be outbound at this link's role. Only the Data of offered flits is
// used; each flit is framed as its own single-word packet.
func (l *Link) AttachSource(name string, src weft.Source) error {
	ln, err := l.lane(name)
	if err != nil {
		return err
	}
	if !ln.outbound {
		return fmt.Errorf("sub-channel %q is inbound at this endpoint", name)
	}
	if ln.src != nil {
		return fmt.Errorf("sub-channel %q already attached", name)
	}
	ln.src = beat{src: src, port: uint8(l.byName[name]), length: uint16(ln.sub.Layout.WordBytes())}
	return nil
}

// AttachSink registers sink as the consumer for the named sub-channel, which
// must be inbound at this link's role.
func (l *Link) AttachSink(name string, sink weft.Sink) error {
	ln, err := l.lane(name)
	if err != nil {
		return err
	}
	if ln.outbound {
		return fmt.Errorf("sub-channel %q is outbound at this endpoint", name)
	}
	if ln.dst != nil {
		return fmt.Errorf("sub-channel %q already attached", name)
	}
	ln.dst = sink
	return nil
}

func (l *Link) lane(name string) (*lane, error) {
	if l.final {
		return nil, fmt.Errorf("link is finalized")
	}
	i, ok := l.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown sub-channel %q", name)
	}
	return l.lanes[i], nil
}

// Finalize checks that every sub-channel has its endpoint attached and
// freezes the link. It must be called exactly once, before the first tick.
// All missing attachments are reported together.
func (l *Link) Finalize() error {
	if l.final {
		return fmt.Errorf("link is already finalized")
	}
	var errs *multierror.Error
	for _, ln := range l.lanes {
		if ln.outbound && ln.src == nil {
			errs = multierror.Append(errs, fmt.Errorf("sub-channel %q has no source", ln.sub.Name))
		}
		if !ln.outbound && ln.dst == nil {
			errs = multierror.Append(errs, fmt.Errorf("sub-channel %q has no sink", ln.sub.Name))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	l.final = true
	return nil
}

// Tick advances every lane by one clock tick. It panics if the link has not
// been finalized.
func (l *Link) Tick() {
	if !l.final {
		panic("link is not finalized")
	}
	for _, ln := range l.lanes {
		ln.tick()
	}
}

func (ln *lane) tick() {
	if !ln.phy.Ready() {
		if !ln.noReset {
			ln.reset()
		}
		return
	}
	if ln.outbound {
		ln.pkt.Tick(ln.src, ln.txq)
		if f, ok := ln.txq.Peek(); ok {
			if ln.phy.Send(f.Data) {
				ln.txq.Advance()
			}
		}
	} else {
		if w, ok := ln.phy.Recv(); ok {
			ln.rxq.Offer(weft.Flit{Data: w})
		}
		ln.dep.Tick(ln.rxq, ln.dst)
	}
}

// reset gives the multi-lane variant the same link-down safety net as the
// single-channel core: lane framing and buffers return to their initial
// state, per lane, while that lane's transport is down.
func (ln *lane) reset() {
	if ln.outbound {
		ln.pkt.Reset()
		ln.txq.Reset()
	} else {
		ln.dep.Reset()
		ln.rxq.Reset()
	}
}

// beat stamps the lane's port and single-beat framing onto each flit offered
// by the attached source, the way the arbiter stamps registered ports on a
// shared link.
type beat struct {
	src    weft.Source
	port   uint8
	length uint16
}

// Peek implements a method of the [weft.Source] interface.
func (b beat) Peek() (weft.Flit, bool) {
	f, ok := b.src.Peek()
	if !ok {
		return weft.Flit{}, false
	}
	return weft.Flit{Data: f.Data, Last: true, Port: b.port, Length: b.length}, true
}

// Advance implements a method of the [weft.Source] interface.
func (b beat) Advance() { b.src.Advance() }
