//go:build linux

package discovery

import (
	"net"

	"github.com/vishvananda/netlink"
)

func localIPv4Addrs() ([]net.IP, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_V4)
	if err != nil {
		return nil, err
	}
	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		out = append(out, a.IPNet.IP)
	}
	return out, nil
}
