// Copyright (C) 2026 The weft authors. All Rights Reserved.

package weft

// A Dispatcher routes the packet stream emitted by one Depacketizer to the
// consumer registered for the packet's port. It implements [Sink]; the
// depacketizer pushes into it without knowing how many consumers sit behind
// it.
//
// The consumer is selected by an equality test on the port field of each
// flit. The dispatcher holds no frame state: the port is constant across a
// frame's flits, and a frame the depacketizer abandons mid-delivery must not
// leave a stale selection behind to misroute the frame after it. A frame
// whose port matches no registered consumer is swallowed silently and counted
// by the frames_unrouted metric; there is no default sink.
type Dispatcher struct {
	sinks []RoutedSink
}

// A RoutedSink pairs a consumer stream with its registered port.
type RoutedSink struct {
	Port uint8
	Sink Sink
}

const noRoute = -1

// NewDispatcher constructs a dispatcher over the given consumers.
func NewDispatcher(sinks []RoutedSink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// Offer implements the [Sink] interface.
func (d *Dispatcher) Offer(f Flit) bool {
	i := d.find(f.Port)
	if i == noRoute {
		if f.Last {
			coreMetrics.framesUnrouted.Add(1)
		}
		return true
	}
	if !d.sinks[i].Sink.Offer(f) {
		return false
	}
	if f.Last {
		coreMetrics.framesDelivered.Add(1)
	}
	return true
}

func (d *Dispatcher) find(port uint8) int {
	for i, s := range d.sinks {
		if s.Port == port {
			return i
		}
	}
	return noRoute
}
