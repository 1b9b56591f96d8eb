package base

import (
	"os/exec"
	"strings"

	"github.com/COSAE-FR/riarp/address"
)

// HostEntry is a line of the operating system's ARP table.
type HostEntry struct {
	IP        address.IPv4
	MAC       address.MAC
	Iface     string
	Permanent bool
}

// HostTable runs `arp -an` and returns the host's ARP table.
func HostTable() ([]HostEntry, error) {
	data, err := exec.Command("arp", "-an").Output()
	if err != nil {
		return nil, err
	}
	return ParseHostTable(string(data)), nil
}

// ParseHostTable reads `arp -an` output in the BSD form
//
//	? (10.0.0.1) at 0:11:22:33:44:55 on en0 permanent [ethernet]
//
// and the Linux net-tools form
//
//	? (10.0.0.1) at 00:11:22:33:44:55 [ether] PERM on eth0
//
// Incomplete entries and unparsable lines are skipped. When an address
// appears more than once the first permanent entry wins.
func ParseHostTable(data string) []HostEntry {
	var entries []HostEntry
	index := make(map[address.IPv4]int)
	for _, line := range strings.Split(data, "\n") {
		entry, ok := parseHostLine(strings.Fields(line))
		if !ok {
			continue
		}
		if i, found := index[entry.IP]; found {
			if !entries[i].Permanent && entry.Permanent {
				entries[i] = entry
			}
			continue
		}
		index[entry.IP] = len(entries)
		entries = append(entries, entry)
	}
	return entries
}

func parseHostLine(fields []string) (HostEntry, bool) {
	if len(fields) < 4 || fields[2] != "at" {
		return HostEntry{}, false
	}
	ip, err := address.ParseIPv4(strings.Trim(fields[1], "()"))
	if err != nil {
		return HostEntry{}, false
	}
	mac, err := address.ParseMAC(padMAC(fields[3]))
	if err != nil {
		return HostEntry{}, false
	}
	entry := HostEntry{IP: ip, MAC: mac}
	for i := 4; i < len(fields); i++ {
		switch fields[i] {
		case "on":
			if i+1 < len(fields) {
				entry.Iface = fields[i+1]
				i++
			}
		case "permanent", "PERM":
			entry.Permanent = true
		}
	}
	return entry, true
}

// padMAC turns the BSD short form 0:1:2:a:b:c into 00:01:02:0a:0b:0c.
func padMAC(s string) string {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return s
	}
	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}
	return strings.Join(parts, ":")
}

// StaticHostEntries keeps the permanent entries of iface.
func StaticHostEntries(entries []HostEntry, iface string) []HostEntry {
	var out []HostEntry
	for _, e := range entries {
		if e.Permanent && e.Iface == iface {
			out = append(out, e)
		}
	}
	return out
}
