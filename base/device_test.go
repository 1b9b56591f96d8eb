package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/COSAE-FR/riarp/address"
	"github.com/COSAE-FR/riarp/arp"
	"github.com/COSAE-FR/riarp/network"
	"github.com/COSAE-FR/riarp/wire"
)

var (
	devMAC  = address.MAC{0x02, 0, 0, 0, 0, 0x01}
	peerMAC = address.MAC{0x02, 0, 0, 0, 0, 0x02}
	ownIP   = address.IPv4{10, 0, 0, 1}
	peerIP  = address.IPv4{10, 0, 0, 2}
)

type frameRecorder struct {
	frames chan []byte
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{frames: make(chan []byte, 64)}
}

func (r *frameRecorder) Write(frame []byte) error {
	r.frames <- append([]byte(nil), frame...)
	return nil
}

// next returns the next transmitted ARP packet and its Ethernet destination.
func (r *frameRecorder) next(t *testing.T) (address.MAC, wire.Packet) {
	t.Helper()
	select {
	case frame := <-r.frames:
		f, err := wire.DecodeFrame(frame)
		if err != nil {
			t.Fatalf("DecodeFrame() unexpected error: %v", err)
		}
		p, err := wire.Codec{}.Decode(f.Payload)
		if err != nil {
			t.Fatalf("Decode() unexpected error: %v", err)
		}
		return f.Dst, p
	case <-time.After(2 * time.Second):
		t.Fatal("no frame sent")
	}
	return address.MAC{}, wire.Packet{}
}

func (r *frameRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case <-r.frames:
		t.Error("unexpected frame sent")
	default:
	}
}

func packetFrame(t *testing.T, src, dst address.MAC, p wire.Packet) []byte {
	t.Helper()
	payload, err := wire.Codec{}.Encode(p)
	if err != nil {
		t.Fatalf("Encode() unexpected error: %v", err)
	}
	frame, err := wire.EncodeFrame(src, dst, payload)
	if err != nil {
		t.Fatalf("EncodeFrame() unexpected error: %v", err)
	}
	return frame
}

func startDevice(t *testing.T, cfg arp.Config, withAddress bool) (*Device, *frameRecorder) {
	t.Helper()
	neighbors, err := NewNeighbors(8)
	if err != nil {
		t.Fatalf("NewNeighbors() unexpected error: %v", err)
	}
	rec := newFrameRecorder()
	d := NewDevice("eth0", devMAC, rec, cfg, neighbors)
	go d.Run()
	t.Cleanup(func() { d.Close() })
	if withAddress {
		subnet, err := network.ParseSubnet("10.0.0.1/24")
		if err != nil {
			t.Fatalf("ParseSubnet() unexpected error: %v", err)
		}
		if err := d.SetAddress(context.Background(), &subnet); err != nil {
			t.Fatalf("SetAddress() unexpected error: %v", err)
		}
	}
	return d, rec
}

type resolution struct {
	mac address.MAC
	err error
}

func resolveAsync(d *Device, ctx context.Context, ip address.IPv4) <-chan resolution {
	out := make(chan resolution, 1)
	go func() {
		mac, err := d.Resolve(ctx, ip)
		out <- resolution{mac, err}
	}()
	return out
}

func wait(t *testing.T, ch <-chan resolution) resolution {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve() did not return")
	}
	return resolution{}
}

func TestResolveByResponse(t *testing.T) {
	d, rec := startDevice(t, arp.Config{RequestPeriod: time.Hour}, true)
	ctx := context.Background()

	pending := resolveAsync(d, ctx, peerIP)
	dst, req := rec.next(t)
	if dst != address.BroadcastMAC {
		t.Errorf("request sent to %s, want broadcast", dst)
	}
	if req.Op != arp.OpRequest || req.TargetProto != peerIP || req.SenderProto != ownIP || req.SenderHW != devMAC {
		t.Errorf("unexpected request %v", req)
	}

	d.HandleFrame(packetFrame(t, peerMAC, devMAC, wire.Packet{
		Op:          arp.OpResponse,
		SenderHW:    peerMAC,
		SenderProto: peerIP,
		TargetHW:    devMAC,
		TargetProto: ownIP,
	}))
	r := wait(t, pending)
	if r.err != nil {
		t.Fatalf("Resolve() unexpected error: %v", r.err)
	}
	if r.mac != peerMAC {
		t.Errorf("Resolve() = %s, want %s", r.mac, peerMAC)
	}

	// cached
	mac, err := d.Resolve(ctx, peerIP)
	if err != nil || mac != peerMAC {
		t.Errorf("second Resolve() = %s, %v", mac, err)
	}
	rec.none(t)

	neighbors := d.Neighbors()
	if len(neighbors) != 1 || neighbors[0].State != NeighborResolved || neighbors[0].MAC != peerMAC {
		t.Errorf("Neighbors() = %+v", neighbors)
	}
}

func TestResolveFailure(t *testing.T) {
	d, rec := startDevice(t, arp.Config{MaxTries: 2, RequestPeriod: 10 * time.Millisecond}, true)

	mac, err := d.Resolve(context.Background(), peerIP)
	if !errors.Is(err, ErrResolutionFailed) {
		t.Fatalf("Resolve() = %s, %v, want ErrResolutionFailed", mac, err)
	}
	for i := 0; i < 2; i++ {
		if _, p := rec.next(t); p.TargetProto != peerIP {
			t.Errorf("request %d targets %s", i, p.TargetProto)
		}
	}
	rec.none(t)

	if got := d.Counters()["arp::resolution_failed"]; got != 1 {
		t.Errorf("resolution_failed = %d, want 1", got)
	}
	n, ok := d.neighbors.Get(peerIP)
	if !ok || n.State != NeighborFailed {
		t.Errorf("neighbor = %+v, %v, want failed", n, ok)
	}
	entries, err := d.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Entries() = %v, want empty", entries)
	}
}

func TestResolveRejectsTargets(t *testing.T) {
	d, rec := startDevice(t, arp.Config{}, true)
	ctx := context.Background()

	tests := []struct {
		name string
		ip   address.IPv4
		want error
	}{
		{"off link", address.IPv4{10, 0, 1, 2}, network.ErrOffLink},
		{"network", address.IPv4{10, 0, 0, 0}, network.ErrReserved},
		{"broadcast", address.IPv4{10, 0, 0, 255}, network.ErrReserved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Resolve(ctx, tt.ip); !errors.Is(err, tt.want) {
				t.Errorf("Resolve(%s) error = %v, want %v", tt.ip, err, tt.want)
			}
		})
	}

	mac, err := d.Resolve(ctx, ownIP)
	if err != nil || mac != devMAC {
		t.Errorf("Resolve(self) = %s, %v", mac, err)
	}
	rec.none(t)
}

func TestResolveWithoutAddress(t *testing.T) {
	d, rec := startDevice(t, arp.Config{}, false)
	if _, err := d.Resolve(context.Background(), peerIP); !errors.Is(err, ErrNoAddress) {
		t.Errorf("Resolve() error = %v, want ErrNoAddress", err)
	}
	rec.none(t)
}

func TestResolveContextDone(t *testing.T) {
	d, rec := startDevice(t, arp.Config{RequestPeriod: time.Hour}, true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Resolve(ctx, peerIP); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Resolve() error = %v, want DeadlineExceeded", err)
	}
	rec.next(t)

	// the request is still pending in the table
	entries, _ := d.Entries(context.Background())
	if _, ok := entries[peerIP].(arp.Waiting); !ok {
		t.Errorf("entry = %#v, want Waiting", entries[peerIP])
	}
	if got := d.Counters()["timer::outstanding"]; got != 1 {
		t.Errorf("timer::outstanding = %d, want 1", got)
	}
}

func TestAddStatic(t *testing.T) {
	d, rec := startDevice(t, arp.Config{}, true)
	ctx := context.Background()

	if err := d.AddStatic(ctx, peerIP, peerMAC); err != nil {
		t.Fatalf("AddStatic() unexpected error: %v", err)
	}
	mac, err := d.Resolve(ctx, peerIP)
	if err != nil || mac != peerMAC {
		t.Errorf("Resolve() = %s, %v", mac, err)
	}
	rec.none(t)

	entries, _ := d.Entries(ctx)
	if _, ok := entries[peerIP].(arp.Static[address.MAC]); !ok {
		t.Errorf("entry = %#v, want Static", entries[peerIP])
	}
	n, _ := d.neighbors.Get(peerIP)
	if n.State != NeighborStatic {
		t.Errorf("neighbor state = %s, want static", n.State)
	}
}

func TestFrameFiltering(t *testing.T) {
	d, rec := startDevice(t, arp.Config{}, true)
	other := address.MAC{0x02, 0, 0, 0, 0, 0x03}
	request := func(src address.MAC) wire.Packet {
		return wire.Packet{
			Op:          arp.OpRequest,
			SenderHW:    src,
			SenderProto: peerIP,
			TargetProto: ownIP,
		}
	}

	// looped back own transmission
	d.HandleFrame(packetFrame(t, devMAC, address.BroadcastMAC, request(devMAC)))
	// unicast to another station
	d.HandleFrame(packetFrame(t, peerMAC, other, request(peerMAC)))
	// not ARP
	d.HandleFrame([]byte{1, 2, 3})
	d.HandleFrame(packetFrame(t, peerMAC, address.BroadcastMAC, request(peerMAC)))

	dst, resp := rec.next(t)
	if dst != peerMAC {
		t.Errorf("response sent to %s, want %s", dst, peerMAC)
	}
	if resp.Op != arp.OpResponse || resp.TargetProto != peerIP || resp.SenderHW != devMAC {
		t.Errorf("unexpected response %v", resp)
	}
	rec.none(t)
	if got := d.Counters()["arp::rx_request"]; got != 1 {
		t.Errorf("rx_request = %d, want 1", got)
	}
}

func TestCloseFailsPending(t *testing.T) {
	d, rec := startDevice(t, arp.Config{RequestPeriod: time.Hour}, true)

	pending := resolveAsync(d, context.Background(), peerIP)
	rec.next(t)
	d.Close()

	if r := wait(t, pending); !errors.Is(r.err, ErrDeviceClosed) {
		t.Errorf("Resolve() error = %v, want ErrDeviceClosed", r.err)
	}
	if _, err := d.Resolve(context.Background(), peerIP); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Resolve() after Close() error = %v, want ErrDeviceClosed", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
