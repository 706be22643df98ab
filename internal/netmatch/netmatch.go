// Package netmatch checks client addresses against quiz subnet lists.
//
// A subnet list is a comma separated list of entries. Each entry is one of:
//
//	10.1.0.0/16        CIDR block (IPv4 or IPv6)
//	10.1.2.10-20       range over the last IPv4 octet
//	10.1.              address prefix (a trailing dot is optional)
//	10.1.2.3           single address
package netmatch

import (
	"net/netip"
	"strconv"
	"strings"
)

// AddressInSubnet reports whether addr matches any entry of the subnet list.
func AddressInSubnet(addr, subnets string) bool {
	ip, ok := parseAddr(addr)
	if !ok {
		return false
	}
	for _, entry := range strings.Split(subnets, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if matchEntry(ip, entry) {
			return true
		}
	}
	return false
}

func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap(), true
	}
	ip, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func matchEntry(ip netip.Addr, entry string) bool {
	switch {
	case strings.Contains(entry, "/"):
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return false
		}
		return prefix.Masked().Contains(ip)
	case strings.Contains(entry, "-"):
		return matchLastOctetRange(ip, entry)
	}

	if exact, err := netip.ParseAddr(entry); err == nil {
		return exact.Unmap() == ip
	}
	return matchPrefix(ip, entry)
}

func matchLastOctetRange(ip netip.Addr, entry string) bool {
	if !ip.Is4() {
		return false
	}
	start, endRaw, _ := strings.Cut(entry, "-")
	first, err := netip.ParseAddr(strings.TrimSpace(start))
	if err != nil || !first.Is4() {
		return false
	}
	end, err := strconv.Atoi(strings.TrimSpace(endRaw))
	if err != nil || end < 0 || end > 255 {
		return false
	}
	got := ip.As4()
	from := first.As4()
	if got[0] != from[0] || got[1] != from[1] || got[2] != from[2] {
		return false
	}
	return int(got[3]) >= int(from[3]) && int(got[3]) <= end
}

// matchPrefix matches partial IPv4 addresses on whole octets, so "10.1" matches
// 10.1.x.x but not 10.10.x.x.
func matchPrefix(ip netip.Addr, entry string) bool {
	if !ip.Is4() {
		return false
	}
	entry = strings.TrimSuffix(entry, ".")
	parts := strings.Split(entry, ".")
	if len(parts) == 0 || len(parts) > 4 {
		return false
	}
	octets := ip.As4()
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
		if int(octets[i]) != n {
			return false
		}
	}
	return true
}
