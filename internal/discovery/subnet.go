package discovery

import (
	"fmt"
	"net"
)

// FallbackSubnetPrefix is the scan prefix to use when LocalSubnetPrefix
// finds no usable interface address.
const FallbackSubnetPrefix = "0.0.0"

// LocalSubnetPrefix returns the first three octets of the first
// non-loopback IPv4 address on this host, e.g. "192.168.231".
func LocalSubnetPrefix() (string, error) {
	ips, err := localIPv4Addrs()
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if p, ok := prefixOf(ip); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("no non-loopback IPv4 address found")
}

func prefixOf(ip net.IP) (string, bool) {
	ip4 := ip.To4()
	if ip4 == nil || ip4.IsLoopback() || ip4.IsUnspecified() {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d", ip4[0], ip4[1], ip4[2]), true
}
