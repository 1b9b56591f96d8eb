package arp

import "sync/atomic"

// Counters tracks engine events. Fields are updated atomically and may be read
// through Snapshot from any goroutine.
type Counters struct {
	rxMalformed         uint64
	rxRequest           uint64
	rxResolve           uint64
	rxGratuitousResolve uint64
	txRequest           uint64
	txResponse          uint64
	txError             uint64
	resolutionFailed    uint64
	staticConflict      uint64
}

func (c *Counters) inc(field *uint64) {
	atomic.AddUint64(field, 1)
}

// Snapshot returns the current counter values keyed by name.
func (c *Counters) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"arp::rx_malformed":          atomic.LoadUint64(&c.rxMalformed),
		"arp::rx_request":            atomic.LoadUint64(&c.rxRequest),
		"arp::rx_resolve":            atomic.LoadUint64(&c.rxResolve),
		"arp::rx_gratuitous_resolve": atomic.LoadUint64(&c.rxGratuitousResolve),
		"arp::tx_request":            atomic.LoadUint64(&c.txRequest),
		"arp::tx_response":           atomic.LoadUint64(&c.txResponse),
		"arp::tx_error":              atomic.LoadUint64(&c.txError),
		"arp::resolution_failed":     atomic.LoadUint64(&c.resolutionFailed),
		"arp::static_conflict":       atomic.LoadUint64(&c.staticConflict),
	}
}
