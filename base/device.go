package base

import (
	"context"
	"errors"
	"sync"

	"github.com/COSAE-FR/riarp/address"
	"github.com/COSAE-FR/riarp/arp"
	"github.com/COSAE-FR/riarp/network"
	"github.com/COSAE-FR/riarp/timer"
	"github.com/COSAE-FR/riarp/wire"
	log "github.com/sirupsen/logrus"
)

var (
	ErrResolutionFailed = errors.New("address resolution failed")
	ErrNoAddress        = errors.New("device has no IPv4 address")
	ErrDeviceClosed     = errors.New("device closed")
)

type (
	Engine  = arp.Engine[string, address.IPv4, address.MAC]
	TimerID = arp.TimerID[string, address.IPv4]
)

// FrameWriter transmits a complete Ethernet frame.
type FrameWriter interface {
	Write(frame []byte) error
}

type result struct {
	mac address.MAC
	err error
}

// Device runs ARP for one Ethernet interface. Every engine call happens on
// the goroutine executing Run; the exported methods are safe for concurrent
// use.
type Device struct {
	name   string
	mac    address.MAC
	writer FrameWriter

	// owned by the Run goroutine
	subnet  *network.Subnet
	engine  *Engine
	waiters map[address.IPv4][]chan result

	timers    *timer.Queue[TimerID]
	neighbors *Neighbors
	frames    chan []byte
	calls     chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	log       *log.Entry
}

// NewDevice creates a Device. Call Run to start processing.
func NewDevice(name string, mac address.MAC, writer FrameWriter, cfg arp.Config, neighbors *Neighbors) *Device {
	d := &Device{
		name:      name,
		mac:       mac,
		writer:    writer,
		waiters:   make(map[address.IPv4][]chan result),
		timers:    timer.NewQueue[TimerID](100),
		neighbors: neighbors,
		frames:    make(chan []byte, 100),
		calls:     make(chan func()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		log: log.WithFields(log.Fields{
			"app":       "riarp",
			"component": "device",
			"device":    name,
		}),
	}
	d.engine = arp.New[string, address.IPv4, address.MAC](cfg, (*engineContext)(d), d.timers, wire.Codec{})
	applied := d.engine.Config()
	d.log.Debugf("ARP tuning: %d tries every %s, entries expire after %s, refresh on expiry %t",
		applied.MaxTries, applied.RequestPeriod, applied.EntryExpiration, applied.RefreshOnExpiry)
	return d
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) MAC() address.MAC {
	return d.mac
}

// Run processes frames, timer firings and calls until Close.
func (d *Device) Run() {
	defer d.shutdown()
	d.log.Debug("Device loop started")
	for {
		select {
		case <-d.stop:
			d.log.Info("Device loop exit requested")
			return
		case frame := <-d.frames:
			d.receive(frame)
		case f := <-d.timers.C():
			if d.timers.Claim(f) {
				d.engine.HandleTimer(f.ID)
			}
		case fn := <-d.calls:
			fn()
		}
	}
}

func (d *Device) shutdown() {
	d.engine.Deinitialize(d.name)
	d.timers.Stop()
	for ip, chans := range d.waiters {
		for _, ch := range chans {
			ch <- result{err: ErrDeviceClosed}
		}
		delete(d.waiters, ip)
	}
	close(d.done)
}

// Close stops Run and waits for it to return.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
	})
	<-d.done
	return nil
}

// HandleFrame queues a captured Ethernet frame for processing.
func (d *Device) HandleFrame(frame []byte) {
	select {
	case d.frames <- frame:
	case <-d.stop:
	}
}

func (d *Device) receive(frame []byte) {
	f, err := wire.DecodeFrame(frame)
	if err != nil {
		d.log.Debugf("Discarding frame: %v", err)
		return
	}
	if f.Src == d.mac {
		// our own transmission, seen by the capture
		return
	}
	if f.Dst != d.mac && f.Dst != address.BroadcastMAC {
		d.log.Debugf("Discarding ARP frame for %s", f.Dst)
		return
	}
	d.engine.ReceivePacket(d.name, f.Payload)
}

// do runs fn on the Run goroutine and waits for it to finish.
func (d *Device) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case d.calls <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDeviceClosed
	}
	// Run always executes a call it received
	<-finished
	return nil
}

// SetAddress sets the device's own IPv4 address. A nil subnet unsets it and
// suppresses outgoing requests.
func (d *Device) SetAddress(ctx context.Context, subnet *network.Subnet) error {
	return d.do(ctx, func() {
		d.subnet = subnet
		if subnet == nil {
			d.log.Info("IPv4 address removed")
			return
		}
		d.log.Infof("IPv4 address set to %s", subnet)
	})
}

// AddStatic installs an administrator-confirmed mapping.
func (d *Device) AddStatic(ctx context.Context, ip address.IPv4, mac address.MAC) error {
	return d.do(ctx, func() {
		d.engine.InsertStatic(d.name, ip, mac)
		if d.neighbors != nil {
			d.neighbors.Add(Neighbor{IP: ip, MAC: mac, State: NeighborStatic})
		}
	})
}

// Resolve returns the MAC address of an on-link IPv4 address, sending
// requests as needed. It blocks until the address resolves, resolution
// fails, ctx is done or the device is closed.
func (d *Device) Resolve(ctx context.Context, ip address.IPv4) (address.MAC, error) {
	ch := make(chan result, 1)
	err := d.do(ctx, func() {
		if d.subnet == nil {
			ch <- result{err: ErrNoAddress}
			return
		}
		if err := d.subnet.CheckTarget(ip); err != nil {
			ch <- result{err: err}
			return
		}
		if ip == d.subnet.Addr {
			ch <- result{mac: d.mac}
			return
		}
		// registered first: Lookup may report failure synchronously
		d.waiters[ip] = append(d.waiters[ip], ch)
		if mac, ok := d.engine.Lookup(d.name, ip); ok {
			d.notify(ip, result{mac: mac})
		}
	})
	if err != nil {
		return address.MAC{}, err
	}

	select {
	case r := <-ch:
		return r.mac, r.err
	case <-ctx.Done():
		_ = d.do(context.Background(), func() { d.forget(ip, ch) })
		return address.MAC{}, ctx.Err()
	}
}

func (d *Device) notify(ip address.IPv4, r result) {
	for _, ch := range d.waiters[ip] {
		ch <- r
	}
	delete(d.waiters, ip)
}

func (d *Device) forget(ip address.IPv4, ch chan result) {
	chans := d.waiters[ip]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(d.waiters, ip)
		return
	}
	d.waiters[ip] = chans
}

// Entries returns a snapshot of the ARP table.
func (d *Device) Entries(ctx context.Context) (map[address.IPv4]arp.Entry, error) {
	var entries map[address.IPv4]arp.Entry
	err := d.do(ctx, func() {
		entries = d.engine.Entries(d.name)
	})
	return entries, err
}

// Neighbors returns the recent resolution outcomes, oldest first.
func (d *Device) Neighbors() []Neighbor {
	if d.neighbors == nil {
		return nil
	}
	return d.neighbors.List()
}

// Counters returns the engine counters and the number of outstanding timers.
func (d *Device) Counters() map[string]uint64 {
	counters := d.engine.Counters().Snapshot()
	counters["timer::outstanding"] = uint64(d.timers.Len())
	return counters
}

// engineContext is the view of a Device handed to the engine. Its methods
// run on the Run goroutine.
type engineContext Device

func (c *engineContext) ProtocolAddr(string) (address.IPv4, bool) {
	if c.subnet == nil {
		return address.IPv4{}, false
	}
	return c.subnet.Addr, true
}

func (c *engineContext) HardwareAddr(string) address.MAC {
	return c.mac
}

func (c *engineContext) BroadcastAddr() address.MAC {
	return address.BroadcastMAC
}

func (c *engineContext) SendFrame(_ string, dst address.MAC, payload []byte) error {
	frame, err := wire.EncodeFrame(c.mac, dst, payload)
	if err != nil {
		return err
	}
	return c.writer.Write(frame)
}

func (c *engineContext) AddressResolved(_ string, ip address.IPv4, mac address.MAC) {
	c.log.WithField("address", ip.String()).Debugf("Resolved to %s", mac)
	if c.neighbors != nil {
		c.neighbors.Add(Neighbor{IP: ip, MAC: mac, State: NeighborResolved})
	}
	(*Device)(c).notify(ip, result{mac: mac})
}

func (c *engineContext) AddressResolutionFailed(_ string, ip address.IPv4) {
	c.log.WithField("address", ip.String()).Info("Resolution failed")
	if c.neighbors != nil {
		c.neighbors.Add(Neighbor{IP: ip, State: NeighborFailed})
	}
	(*Device)(c).notify(ip, result{err: ErrResolutionFailed})
}
