package arp

// TimerKind separates the two timer classes an entry can own.
type TimerKind uint8

const (
	// RequestRetry belongs to a Waiting entry.
	RequestRetry TimerKind = iota + 1
	// EntryExpiration belongs to a Dynamic entry.
	EntryExpiration
)

func (k TimerKind) String() string {
	switch k {
	case RequestRetry:
		return "request-retry"
	case EntryExpiration:
		return "entry-expiration"
	}
	return "unknown"
}

// TimerID names one timer. It is comparable so the timer substrate can use it
// as a map key.
type TimerID[D comparable, P Addr] struct {
	Device D
	Kind   TimerKind
	Addr   P
}

func retryTimer[D comparable, P Addr](dev D, addr P) TimerID[D, P] {
	return TimerID[D, P]{Device: dev, Kind: RequestRetry, Addr: addr}
}

func expirationTimer[D comparable, P Addr](dev D, addr P) TimerID[D, P] {
	return TimerID[D, P]{Device: dev, Kind: EntryExpiration, Addr: addr}
}
