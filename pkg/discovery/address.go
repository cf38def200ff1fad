package discovery

import (
	"net"
	"sort"
	"strconv"
)

// SortIPsByPreference orders addresses for use as mesh peers.
// Priority order (highest to lowest):
//  1. Private IPv4 (the usual home of mesh radios and their gateway)
//  2. Other IPv4
//  3. IPv6 Unique Local Addresses (fc00::/7)
//  4. Global IPv6
//  5. IPv6 link-local (needs a zone to be dialable)
//  6. Loopback and multicast
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99
	}

	switch {
	case ip.IsLoopback():
		return 80
	case ip.IsMulticast():
		return 90
	}

	if ip4 := ip.To4(); ip4 != nil {
		if ip4.IsPrivate() {
			return 0
		}
		return 1
	}

	if isUniqueLocal(ip) {
		return 2
	}
	if ip.IsGlobalUnicast() {
		return 3
	}
	if ip.IsLinkLocalUnicast() {
		return 4
	}
	return 10
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address (ULA).
// ULA range: fc00::/7 (fc00:: to fdff::)
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	if ip == nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// PeerAddress joins ip and port into a "host:port" string accepted by
// transport.ResolvePeers.
func PeerAddress(ip net.IP, port int) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}
