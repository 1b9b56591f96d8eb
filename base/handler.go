package base

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"
)

// ARPFilter captures ARP frames only, untagged.
const ARPFilter = "arp and not vlan"

// FrameSink consumes captured Ethernet frames.
type FrameSink interface {
	HandleFrame(frame []byte)
}

type PacketHandler struct {
	handle *pcap.Handle
	iface  *net.Interface
	log    *log.Entry
}

func NewHandler(iface *net.Interface) (*PacketHandler, error) {
	handler := &PacketHandler{
		iface: iface,
		log: log.WithFields(log.Fields{
			"app":       "riarp",
			"component": "capture",
		}),
	}
	handle, err := pcap.OpenLive(iface.Name, 65536, true, pcap.BlockForever)
	if err != nil {
		handler.log.Errorf("Unable to open packet capture on interface %s", iface.Name)
		return handler, err
	}
	handler.handle = handle
	return handler, nil
}

func (handler *PacketHandler) SetFilter(filter string) error {
	return handler.handle.SetBPFFilter(filter)
}

func (handler *PacketHandler) Close() {
	handler.handle.Close()
}

// Listen feeds ARP frames to sink until stop is closed or the capture ends.
func (handler *PacketHandler) Listen(stop <-chan struct{}, sink FrameSink) {
	handler.log.Debugf("Listening on interface %s", handler.iface.Name)
	src := gopacket.NewPacketSource(handler.handle, layers.LayerTypeEthernet)
	in := src.Packets()
	for {
		select {
		case <-stop:
			handler.log.Info("Received a listener kill switch")
			return
		case packet, ok := <-in:
			if !ok {
				handler.log.Info("Packet capture closed")
				return
			}
			if packet.Layer(layers.LayerTypeARP) == nil {
				handler.log.Debug("Ignoring non ARP packet")
				continue
			}
			sink.HandleFrame(packet.Data())
		}
	}
}

func (handler *PacketHandler) Write(frame []byte) error {
	handler.log.Debugf("Sending packet on wire, len %d", len(frame))
	return handler.handle.WritePacketData(frame)
}
