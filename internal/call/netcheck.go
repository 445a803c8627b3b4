package call

import (
	"net"
	"strings"
)

var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// tunnelNames are interface name fragments of VPN and tunnel adapters.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether the host looks like it sits behind a VPN
// or carrier-grade NAT, where direct paths rarely work and TURN is needed.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if restrictiveInterface(iface.Name, addrs) {
			return true
		}
	}
	return false
}

func restrictiveInterface(name string, addrs []net.Addr) bool {
	name = strings.ToLower(name)
	for _, frag := range tunnelNames {
		if strings.Contains(name, frag) {
			return true
		}
	}
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}
