package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/COSAE-FR/riarp/address"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func TestFrameRoundTrip(t *testing.T) {
	frame, err := EncodeFrame(localMAC, address.BroadcastMAC, requestBytes)
	if err != nil {
		t.Fatalf("EncodeFrame() unexpected error: %v", err)
	}
	f, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame() unexpected error: %v", err)
	}
	if f.Src != localMAC || f.Dst != address.BroadcastMAC {
		t.Errorf("DecodeFrame() src=%v dst=%v", f.Src, f.Dst)
	}
	if !bytes.HasPrefix(f.Payload, requestBytes) {
		t.Errorf("DecodeFrame() payload = % x", f.Payload)
	}
	if _, err := (Codec{}).Decode(f.Payload); err != nil {
		t.Errorf("Decode(frame payload) unexpected error: %v", err)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	if _, err := DecodeFrame([]byte{1, 2, 3}); !errors.Is(err, ErrFormat) {
		t.Errorf("DecodeFrame(short) error = %v, want ErrFormat", err)
	}

	eth := &layers.Ethernet{
		SrcMAC:       remoteMAC.HardwareAddr(),
		DstMAC:       localMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(requestBytes)); err != nil {
		t.Fatalf("SerializeLayers() unexpected error: %v", err)
	}
	if _, err := DecodeFrame(buf.Bytes()); !errors.Is(err, ErrNotExpected) {
		t.Errorf("DecodeFrame(ipv4) error = %v, want ErrNotExpected", err)
	}
}
