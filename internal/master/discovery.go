package master

import "net"

// DiscoveryResponse is the JSON body returned by GET /discovery.
type DiscoveryResponse struct {
	IP string `json:"ip"`
}

// localIP reports the coordinator's own LAN address, using the same
// UDP-dial trick as the original implementation: dial a well-known address
// (the packet is never actually sent) purely to let the kernel pick a
// local address, then read it back. Falls back to loopback on failure.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
