package discovery

import (
	"net"
	"testing"
)

func TestSortIPsByPreference(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("fe80::1"),
		net.ParseIP("2001:db8::1"),
		net.ParseIP("127.0.0.1"),
		net.ParseIP("fd12::1"),
		net.ParseIP("8.8.8.8"),
		net.ParseIP("192.168.1.5"),
	}

	sorted := SortIPsByPreference(ips)

	want := []string{"192.168.1.5", "8.8.8.8", "fd12::1", "2001:db8::1", "fe80::1", "127.0.0.1"}
	for i, w := range want {
		if sorted[i].String() != w {
			t.Errorf("sorted[%d] = %s, want %s", i, sorted[i], w)
		}
	}

	if ips[0].String() != "fe80::1" {
		t.Error("SortIPsByPreference modified its input")
	}
}

func TestFilterIPs(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("192.168.1.5"),
		net.ParseIP("fd12::1"),
		net.ParseIP("10.0.0.1"),
	}

	if v4 := FilterIPv4(ips); len(v4) != 2 {
		t.Errorf("FilterIPv4() = %v, want 2 addresses", v4)
	}
	if v6 := FilterIPv6(ips); len(v6) != 1 || v6[0].String() != "fd12::1" {
		t.Errorf("FilterIPv6() = %v, want [fd12::1]", v6)
	}
}

func TestPeerAddress(t *testing.T) {
	tests := []struct {
		ip   net.IP
		port int
		want string
	}{
		{net.IPv4(10, 0, 0, 1), 4210, "10.0.0.1:4210"},
		{net.ParseIP("fd00::2"), 99, "[fd00::2]:99"},
	}
	for _, tt := range tests {
		if got := PeerAddress(tt.ip, tt.port); got != tt.want {
			t.Errorf("PeerAddress(%s, %d) = %q, want %q", tt.ip, tt.port, got, tt.want)
		}
	}
}
