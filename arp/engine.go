// Package arp implements the Address Resolution Protocol (RFC 826) for a
// device layer: a per-device table of protocol-to-hardware mappings and the
// request, reply, retry and expiration logic that keeps it populated.
//
// An Engine is not safe for concurrent use. The caller serializes every call
// for a device, typically from a single event loop that also receives frames
// and timer firings.
package arp

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Engine resolves protocol addresses of type P to hardware addresses of type
// H on devices identified by D.
type Engine[D comparable, P, H Addr] struct {
	cfg      Config
	dev      Device[D, P, H]
	timers   Timers[D, P]
	codec    Codec[P, H]
	tables   map[D]*Table[P, H]
	counters *Counters
	log      *log.Entry
}

// New creates an Engine. Zero fields of cfg take their defaults.
func New[D comparable, P, H Addr](cfg Config, dev Device[D, P, H], timers Timers[D, P], codec Codec[P, H]) *Engine[D, P, H] {
	return &Engine[D, P, H]{
		cfg:      cfg.withDefaults(),
		dev:      dev,
		timers:   timers,
		codec:    codec,
		tables:   make(map[D]*Table[P, H]),
		counters: &Counters{},
		log: log.WithFields(log.Fields{
			"app":       "riarp",
			"component": "arp",
		}),
	}
}

func (e *Engine[D, P, H]) Config() Config {
	return e.cfg
}

func (e *Engine[D, P, H]) Counters() *Counters {
	return e.counters
}

func (e *Engine[D, P, H]) logger(dev D, addr P) *log.Entry {
	return e.log.WithFields(log.Fields{
		"device":  fmt.Sprint(dev),
		"address": addr.String(),
	})
}

// table returns the device's table, creating it on first use.
func (e *Engine[D, P, H]) table(dev D) *Table[P, H] {
	t, ok := e.tables[dev]
	if !ok {
		t = NewTable[P, H](e.log.WithField("device", fmt.Sprint(dev)))
		e.tables[dev] = t
	}
	return t
}

// Entry returns the table state for addr on dev.
func (e *Engine[D, P, H]) Entry(dev D, addr P) (Entry, bool) {
	t, ok := e.tables[dev]
	if !ok {
		return nil, false
	}
	return t.Entry(addr)
}

// Entries returns a copy of dev's table.
func (e *Engine[D, P, H]) Entries(dev D) map[P]Entry {
	out := make(map[P]Entry)
	if t, ok := e.tables[dev]; ok {
		t.Range(func(addr P, entry Entry) bool {
			out[addr] = entry
			return true
		})
	}
	return out
}

// Lookup returns the cached hardware address for addr. On a miss it starts
// (or continues) resolution and returns false without waiting; the outcome is
// reported later through AddressResolved or AddressResolutionFailed.
func (e *Engine[D, P, H]) Lookup(dev D, addr P) (H, bool) {
	hw, ok := e.table(dev).Lookup(addr)
	if !ok {
		e.sendRequest(dev, addr)
	}
	return hw, ok
}

// InsertStatic installs an administrator-confirmed mapping. Learned mappings
// never replace it; only another static insertion does.
func (e *Engine[D, P, H]) InsertStatic(dev D, addr P, hw H) {
	// No-ops when the timers do not exist.
	pending := e.timers.Cancel(retryTimer(dev, addr))
	e.timers.Cancel(expirationTimer(dev, addr))

	e.table(dev).InsertStatic(addr, hw)

	if pending {
		e.dev.AddressResolved(dev, addr, hw)
	}
}

// Deinitialize cancels every timer of dev and drops its table.
func (e *Engine[D, P, H]) Deinitialize(dev D) {
	t, ok := e.tables[dev]
	if !ok {
		return
	}
	e.log.WithField("device", fmt.Sprint(dev)).Debugf("Dropping ARP table with %d entries", t.Len())
	t.Range(func(addr P, _ Entry) bool {
		e.timers.Cancel(retryTimer(dev, addr))
		e.timers.Cancel(expirationTimer(dev, addr))
		return true
	})
	delete(e.tables, dev)
}

// HandleTimer processes a timer firing.
func (e *Engine[D, P, H]) HandleTimer(id TimerID[D, P]) {
	t, ok := e.tables[id.Device]
	if !ok {
		return
	}
	switch id.Kind {
	case RequestRetry:
		if _, waiting := t.RemainingTries(id.Addr); !waiting {
			e.logger(id.Device, id.Addr).Debug("Ignoring retry timer for an entry that is no longer waiting")
			return
		}
		e.sendRequest(id.Device, id.Addr)
	case EntryExpiration:
		if entry, _ := t.Entry(id.Addr); !isDynamic[H](entry) {
			e.logger(id.Device, id.Addr).Debug("Ignoring expiration timer for an entry that is not dynamic")
			return
		}
		t.Remove(id.Addr)
		if e.cfg.RefreshOnExpiry {
			e.refresh(id.Device, id.Addr)
		}
	}
}

func isDynamic[H Addr](entry Entry) bool {
	_, ok := entry.(Dynamic[H])
	return ok
}

// refresh sends one request for addr without arming a retry timer. Nothing
// happens if it goes unanswered.
func (e *Engine[D, P, H]) refresh(dev D, addr P) {
	own, ok := e.dev.ProtocolAddr(dev)
	if !ok {
		return
	}
	e.send(dev, e.dev.BroadcastAddr(), Packet[P, H]{
		Op:          OpRequest,
		SenderHW:    e.dev.HardwareAddr(dev),
		SenderProto: own,
		TargetHW:    e.dev.BroadcastAddr(),
		TargetProto: addr,
	})
}

func (e *Engine[D, P, H]) sendRequest(dev D, addr P) {
	t := e.table(dev)
	tries, waiting := t.RemainingTries(addr)
	if !waiting {
		tries = e.cfg.MaxTries
	}
	id := retryTimer(dev, addr)

	own, ok := e.dev.ProtocolAddr(dev)
	if !ok {
		// Peers would cache a bogus sender address, so nothing is sent.
		e.logger(dev, addr).Debug("Not sending ARP request: no local protocol address")
		if waiting {
			e.timers.Cancel(id)
			t.Remove(addr)
		}
		return
	}

	// The target hardware address is unspecified by RFC 826; broadcast is
	// where the frame actually goes.
	e.send(dev, e.dev.BroadcastAddr(), Packet[P, H]{
		Op:          OpRequest,
		SenderHW:    e.dev.HardwareAddr(dev),
		SenderProto: own,
		TargetHW:    e.dev.BroadcastAddr(),
		TargetProto: addr,
	})

	if tries > 1 {
		e.timers.Schedule(e.cfg.RequestPeriod, id)
		t.SetWaiting(addr, tries-1)
		return
	}
	e.timers.Cancel(id)
	t.Remove(addr)
	e.counters.inc(&e.counters.resolutionFailed)
	e.logger(dev, addr).Info("ARP resolution failed")
	e.dev.AddressResolutionFailed(dev, addr)
}

// send encodes and transmits p. Failures are logged only: a waiting entry's
// retry timer produces the next attempt and responses are never retried.
func (e *Engine[D, P, H]) send(dev D, dst H, p Packet[P, H]) {
	logger := e.logger(dev, p.TargetProto)
	b, err := e.codec.Encode(p)
	if err != nil {
		e.counters.inc(&e.counters.txError)
		logger.Errorf("Cannot encode ARP %s: %v", p.Op, err)
		return
	}
	if err := e.dev.SendFrame(dev, dst, b); err != nil {
		e.counters.inc(&e.counters.txError)
		logger.Warnf("Cannot send ARP %s to %s: %v", p.Op, dst, err)
		return
	}
	switch p.Op {
	case OpRequest:
		e.counters.inc(&e.counters.txRequest)
	case OpResponse:
		e.counters.inc(&e.counters.txResponse)
	}
}
