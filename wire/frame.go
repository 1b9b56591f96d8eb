package wire

import (
	"fmt"

	"github.com/COSAE-FR/riarp/address"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Frame is a decoded Ethernet frame carrying ARP.
type Frame struct {
	Src     address.MAC
	Dst     address.MAC
	Payload []byte
}

// EncodeFrame wraps an ARP payload in an Ethernet header.
func EncodeFrame(src, dst address.MAC, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src.HardwareAddr(),
		DstMAC:       dst.HardwareAddr(),
		EthernetType: layers.EthernetTypeARP,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOptions, eth, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFrame parses an Ethernet frame and returns its ARP payload. Frames of
// any other EtherType fail with ErrNotExpected.
func DecodeFrame(data []byte) (Frame, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if eth.EthernetType != layers.EthernetTypeARP {
		return Frame{}, fmt.Errorf("%w: ethertype %s", ErrNotExpected, eth.EthernetType)
	}
	src, err := address.MACFromHardwareAddr(eth.SrcMAC)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	dst, err := address.MACFromHardwareAddr(eth.DstMAC)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return Frame{Src: src, Dst: dst, Payload: eth.Payload}, nil
}
