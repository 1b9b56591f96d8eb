package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/COSAE-FR/riarp/address"
	"github.com/apparentlymart/go-cidr/cidr"
)

var (
	ErrOffLink  = errors.New("address is not on the local link")
	ErrReserved = errors.New("network or broadcast address")
	ErrNoIPv4   = errors.New("no IPv4 address found")
)

// Subnet is a device's own IPv4 address with its on-link prefix.
type Subnet struct {
	Addr    address.IPv4
	Network *net.IPNet
}

// ParseSubnet parses an interface address in CIDR notation, like
// 192.168.1.10/24.
func ParseSubnet(s string) (Subnet, error) {
	ip, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return Subnet{}, err
	}
	a, err := address.IPv4FromIP(ip)
	if err != nil {
		return Subnet{}, err
	}
	return Subnet{Addr: a, Network: ipNet}, nil
}

func (s Subnet) String() string {
	ones, _ := s.Network.Mask.Size()
	return fmt.Sprintf("%s/%d", s.Addr, ones)
}

func (s Subnet) Contains(ip address.IPv4) bool {
	return s.Network.Contains(ip.IP())
}

// NetworkAddr and BroadcastAddr are the first and last address of the prefix.
func (s Subnet) NetworkAddr() address.IPv4 {
	first, _ := cidr.AddressRange(s.Network)
	a, _ := address.IPv4FromIP(first)
	return a
}

func (s Subnet) BroadcastAddr() address.IPv4 {
	_, last := cidr.AddressRange(s.Network)
	a, _ := address.IPv4FromIP(last)
	return a
}

// Size is the number of addresses in the prefix.
func (s Subnet) Size() uint64 {
	return cidr.AddressCount(s.Network)
}

// CheckTarget reports whether ip can be resolved on this link. /31 and /32
// prefixes have no network or broadcast address (RFC 3021).
func (s Subnet) CheckTarget(ip address.IPv4) error {
	if !s.Contains(ip) {
		return fmt.Errorf("%w: %s not in %s", ErrOffLink, ip, s.Network)
	}
	if s.Size() > 2 && (ip == s.NetworkAddr() || ip == s.BroadcastAddr()) {
		return fmt.Errorf("%w: %s in %s", ErrReserved, ip, s.Network)
	}
	return nil
}

// InterfaceSubnet returns the first IPv4 address configured on the named
// interface.
func InterfaceSubnet(interfaceName string) (Subnet, error) {
	iface, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return Subnet{}, err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return Subnet{}, err
	}
	for _, addr := range addrs {
		switch ip := addr.(type) {
		case *net.IPNet:
			if ip.IP.To4() != nil {
				return ParseSubnet(ip.String())
			}
		}
	}
	return Subnet{}, fmt.Errorf("%w on %s", ErrNoIPv4, interfaceName)
}
