// Package address holds the fixed-size link-layer and network-layer address
// types resolved by ARP on Ethernet/IPv4 links.
package address

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrInvalidIPv4 = errors.New("not an IPv4 address")
	ErrInvalidMAC  = errors.New("not an Ethernet MAC address")
)

// IPv4 is an IPv4 address in network byte order.
type IPv4 [4]byte

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is the all-ones Ethernet address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IPv4FromIP converts a net.IP. It fails for anything that has no 4-byte form.
func IPv4FromIP(ip net.IP) (IPv4, error) {
	v4 := ip.To4()
	if v4 == nil {
		return IPv4{}, fmt.Errorf("%w: %v", ErrInvalidIPv4, ip)
	}
	var a IPv4
	copy(a[:], v4)
	return a, nil
}

// ParseIPv4 parses a dotted-quad address.
func ParseIPv4(s string) (IPv4, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return IPv4{}, fmt.Errorf("%w: %q", ErrInvalidIPv4, s)
	}
	return IPv4FromIP(ip)
}

// MACFromHardwareAddr converts a net.HardwareAddr of length 6.
func MACFromHardwareAddr(hw net.HardwareAddr) (MAC, error) {
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("%w: %v", ErrInvalidMAC, hw)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// ParseMAC parses any EUI-48 notation accepted by net.ParseMAC.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	return MACFromHardwareAddr(hw)
}

func (a IPv4) IP() net.IP {
	return net.IPv4(a[0], a[1], a[2], a[3]).To4()
}

func (a IPv4) IsZero() bool {
	return a == IPv4{}
}

func (a IPv4) String() string {
	return a.IP().String()
}

func (m MAC) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(m[:])
}

func (m MAC) String() string {
	return m.HardwareAddr().String()
}
