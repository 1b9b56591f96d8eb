package arp

import (
	log "github.com/sirupsen/logrus"
)

// Entry is the state of one table slot. It is implemented only by Static,
// Dynamic and Waiting.
type Entry interface {
	entry()
}

// Static is an administrator-confirmed mapping. No timer exists for it.
type Static[H Addr] struct {
	HardwareAddr H
}

// Dynamic is a learned mapping. Exactly one expiration timer exists for it.
type Dynamic[H Addr] struct {
	HardwareAddr H
}

// Waiting is a resolution in flight. Exactly one retry timer exists for it.
type Waiting struct {
	RemainingTries int
}

func (Static[H]) entry()  {}
func (Dynamic[H]) entry() {}
func (Waiting) entry()    {}

// Table maps protocol addresses of one device to their resolution state.
type Table[P, H Addr] struct {
	entries map[P]Entry
	log     *log.Entry
}

func NewTable[P, H Addr](logger *log.Entry) *Table[P, H] {
	if logger == nil {
		logger = log.WithField("component", "arp_table")
	}
	return &Table[P, H]{
		entries: make(map[P]Entry),
		log:     logger,
	}
}

// InsertStatic overrides whatever is stored for addr.
func (t *Table[P, H]) InsertStatic(addr P, hw H) {
	t.entries[addr] = Static[H]{HardwareAddr: hw}
}

// InsertDynamic stores a learned mapping unless a static one exists for addr.
// It returns false, leaving the table as it was, on such a conflict.
func (t *Table[P, H]) InsertDynamic(addr P, hw H) bool {
	if old, ok := t.entries[addr].(Static[H]); ok {
		t.log.WithFields(log.Fields{
			"address": addr.String(),
			"static":  old.HardwareAddr.String(),
			"learned": hw.String(),
		}).Error("Conflicting ARP entries: check the static configuration and the hosts on the local network")
		return false
	}
	t.entries[addr] = Dynamic[H]{HardwareAddr: hw}
	return true
}

func (t *Table[P, H]) Remove(addr P) {
	delete(t.entries, addr)
}

// SetWaiting stores a pending resolution with n tries left.
func (t *Table[P, H]) SetWaiting(addr P, n int) {
	t.entries[addr] = Waiting{RemainingTries: n}
}

// RemainingTries returns the counter of a Waiting entry.
func (t *Table[P, H]) RemainingTries(addr P) (int, bool) {
	if w, ok := t.entries[addr].(Waiting); ok {
		return w.RemainingTries, true
	}
	return 0, false
}

// Lookup returns the hardware address of a Static or Dynamic entry.
func (t *Table[P, H]) Lookup(addr P) (hw H, ok bool) {
	switch e := t.entries[addr].(type) {
	case Static[H]:
		return e.HardwareAddr, true
	case Dynamic[H]:
		return e.HardwareAddr, true
	}
	return hw, false
}

func (t *Table[P, H]) Entry(addr P) (Entry, bool) {
	e, ok := t.entries[addr]
	return e, ok
}

func (t *Table[P, H]) Len() int {
	return len(t.entries)
}

// Range calls fn for every entry until fn returns false. fn must not modify
// the table.
func (t *Table[P, H]) Range(fn func(addr P, e Entry) bool) {
	for addr, e := range t.entries {
		if !fn(addr, e) {
			return
		}
	}
}
