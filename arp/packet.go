package arp

import "fmt"

// Op is the ARP operation code.
type Op uint16

const (
	OpRequest  Op = 1
	OpResponse Op = 2
)

// ParseOp maps a wire value to an Op. Only requests and responses are known.
func ParseOp(v uint16) (Op, bool) {
	switch Op(v) {
	case OpRequest, OpResponse:
		return Op(v), true
	}
	return 0, false
}

func (o Op) String() string {
	switch o {
	case OpRequest:
		return "request"
	case OpResponse:
		return "response"
	}
	return fmt.Sprintf("op(%d)", uint16(o))
}

// Packet is a decoded ARP packet.
type Packet[P, H Addr] struct {
	Op          Op
	SenderHW    H
	SenderProto P
	TargetHW    H
	TargetProto P
}

// IsGratuitous reports whether the packet announces the sender's own mapping.
func (p Packet[P, H]) IsGratuitous() bool {
	return p.SenderProto == p.TargetProto
}

func (p Packet[P, H]) String() string {
	return fmt.Sprintf("%s %s(%s) -> %s(%s)", p.Op, p.SenderProto, p.SenderHW, p.TargetProto, p.TargetHW)
}
