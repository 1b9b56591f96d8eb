// Package wire encodes and decodes Ethernet/IPv4 ARP packets and the Ethernet
// frames that carry them.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/COSAE-FR/riarp/address"
	"github.com/COSAE-FR/riarp/arp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	// HeaderLen is the fixed part of an ARP packet.
	HeaderLen = 8
	// PacketLen is the length of an Ethernet/IPv4 ARP packet.
	PacketLen = HeaderLen + 2*6 + 2*4
)

var (
	// ErrFormat reports a truncated or inconsistent packet.
	ErrFormat = errors.New("malformed ARP packet")
	// ErrNotSupported reports a hardware or protocol type this package does
	// not know.
	ErrNotSupported = errors.New("unsupported ARP hardware or protocol type")
	// ErrNotExpected reports a frame that does not carry ARP.
	ErrNotExpected = errors.New("unexpected ARP hardware or protocol type")
)

// Packet is an ARP packet for Ethernet hardware and IPv4.
type Packet = arp.Packet[address.IPv4, address.MAC]

// Codec implements arp.Codec for Ethernet/IPv4.
type Codec struct{}

var serializeOptions = gopacket.SerializeOptions{
	FixLengths: true,
}

// PeekTypes reads the hardware and protocol types of an ARP packet without
// decoding the rest. Only Ethernet and IPv4 are recognised. Decode runs it
// first.
func PeekTypes(b []byte) (layers.LinkType, layers.EthernetType, error) {
	if len(b) < HeaderLen {
		return 0, 0, fmt.Errorf("%w: too few bytes for header (%d)", ErrFormat, len(b))
	}
	htype := binary.BigEndian.Uint16(b[0:2])
	ptype := binary.BigEndian.Uint16(b[2:4])
	if htype != uint16(layers.LinkTypeEthernet) {
		return 0, 0, fmt.Errorf("%w: hardware type %#04x", ErrNotSupported, htype)
	}
	if ptype != uint16(layers.EthernetTypeIPv4) {
		return 0, 0, fmt.Errorf("%w: protocol type %#04x", ErrNotSupported, ptype)
	}
	if b[4] != 6 || b[5] != 4 {
		return 0, 0, fmt.Errorf("%w: address lengths %d/%d for Ethernet/IPv4", ErrFormat, b[4], b[5])
	}
	return layers.LinkTypeEthernet, layers.EthernetTypeIPv4, nil
}

// Decode parses an Ethernet/IPv4 ARP packet. Trailing bytes, such as Ethernet
// padding, are ignored.
func (Codec) Decode(b []byte) (Packet, error) {
	if _, _, err := PeekTypes(b); err != nil {
		return Packet{}, err
	}
	if len(b) < PacketLen {
		return Packet{}, fmt.Errorf("%w: too few bytes for body (%d < %d)", ErrFormat, len(b), PacketLen)
	}

	var a layers.ARP
	if err := a.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	op, ok := arp.ParseOp(a.Operation)
	if !ok {
		return Packet{}, fmt.Errorf("%w: operation %d", ErrFormat, a.Operation)
	}

	p := Packet{Op: op}
	copy(p.SenderHW[:], a.SourceHwAddress)
	copy(p.SenderProto[:], a.SourceProtAddress)
	copy(p.TargetHW[:], a.DstHwAddress)
	copy(p.TargetProto[:], a.DstProtAddress)
	return p, nil
}

// Encode serializes p.
func (Codec) Encode(p Packet) ([]byte, error) {
	a := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         uint16(p.Op),
		SourceHwAddress:   p.SenderHW[:],
		SourceProtAddress: p.SenderProto[:],
		DstHwAddress:      p.TargetHW[:],
		DstProtAddress:    p.TargetProto[:],
	}
	buf := gopacket.NewSerializeBufferExpectedSize(0, PacketLen)
	if err := gopacket.SerializeLayers(buf, serializeOptions, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
