package transport

import (
	"fmt"
	"net"
)

// DefaultPort is the default mesh datagram port.
const DefaultPort = 4210

// ResolvePeers resolves "host:port" strings into UDP addresses.
// A missing port defaults to DefaultPort.
func ResolvePeers(addrs []string) ([]net.Addr, error) {
	peers := make([]net.Addr, 0, len(addrs))
	for _, a := range addrs {
		if _, _, err := net.SplitHostPort(a); err != nil {
			a = net.JoinHostPort(a, fmt.Sprint(DefaultPort))
		}
		udpAddr, err := net.ResolveUDPAddr("udp", a)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, a, err)
		}
		peers = append(peers, udpAddr)
	}
	return peers, nil
}

// ListenAddr returns the wildcard listen address for a port.
func ListenAddr(port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf(":%d", port)
}
