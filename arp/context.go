package arp

import (
	"fmt"
	"time"
)

const (
	// BSD resends requests every 20 seconds and gives up on a TCP connect
	// after 75, so 4 tries keeps resolution inside that window.
	DefaultMaxTries = 4
	// FreeBSD's retransmit interval.
	DefaultRequestPeriod = 20 * time.Second
	// Common lifetime of a learned entry in other stacks.
	DefaultEntryExpiration = 60 * time.Second
)

// Addr is satisfied by protocol and hardware address value types.
type Addr interface {
	comparable
	fmt.Stringer
}

// Device is what the engine needs from the device layer. D identifies a
// device, P is the network protocol address type and H the link-layer
// address type.
type Device[D comparable, P, H Addr] interface {
	// ProtocolAddr reports the device's own protocol address, if one is
	// configured.
	ProtocolAddr(dev D) (P, bool)
	// HardwareAddr returns the device's own hardware address.
	HardwareAddr(dev D) H
	// BroadcastAddr returns the link-layer broadcast address.
	BroadcastAddr() H
	// SendFrame transmits an encoded ARP packet to dst.
	SendFrame(dev D, dst H, payload []byte) error

	// AddressResolved notifies that proto now maps to hw.
	AddressResolved(dev D, proto P, hw H)
	// AddressResolutionFailed notifies that resolving proto gave up.
	AddressResolutionFailed(dev D, proto P)
}

// Timers is the scheduling substrate. Schedule replaces any outstanding timer
// with the same id. Cancel reports whether a timer was outstanding and is a
// no-op otherwise.
type Timers[D comparable, P Addr] interface {
	Schedule(after time.Duration, id TimerID[D, P])
	Cancel(id TimerID[D, P]) bool
}

// Codec converts between wire bytes and decoded packets.
type Codec[P, H Addr] interface {
	Decode(b []byte) (Packet[P, H], error)
	Encode(p Packet[P, H]) ([]byte, error)
}

// Config carries the engine's tuning constants.
type Config struct {
	MaxTries        int           `yaml:"max_tries"`
	RequestPeriod   time.Duration `yaml:"request_period"`
	EntryExpiration time.Duration `yaml:"entry_expiration"`
	// RefreshOnExpiry sends one unretried request for an address whose
	// entry just expired. Not required by RFC 826.
	RefreshOnExpiry bool `yaml:"refresh_on_expiry"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MaxTries:        DefaultMaxTries,
		RequestPeriod:   DefaultRequestPeriod,
		EntryExpiration: DefaultEntryExpiration,
		RefreshOnExpiry: true,
	}
}

// withDefaults fills zero fields. RefreshOnExpiry is left as given.
func (c Config) withDefaults() Config {
	if c.MaxTries <= 0 {
		c.MaxTries = DefaultMaxTries
	}
	if c.RequestPeriod <= 0 {
		c.RequestPeriod = DefaultRequestPeriod
	}
	if c.EntryExpiration <= 0 {
		c.EntryExpiration = DefaultEntryExpiration
	}
	return c
}
