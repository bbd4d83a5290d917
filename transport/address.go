package transport

import (
	"net"
)

// LocalIP discovers the primary outbound IPv4 address by opening a
// connectionless UDP "connection" toward a public address. No traffic is
// sent; the kernel just picks the route and source address. Falls back to
// loopback on hosts with no route at all.
func LocalIP() net.IP {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return net.IPv4(127, 0, 0, 1).To4()
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		if ip4 := addr.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return net.IPv4(127, 0, 0, 1).To4()
}

// SubnetBroadcast computes the directed broadcast address for ip using the
// netmask of the interface that owns it. When no interface claims the
// address, a /24 is assumed, which matches the common home-LAN case.
func SubnetBroadcast(ip net.IP) net.IP {
	ip4 := ip.To4()
	if ip4 == nil {
		return net.IPv4bcast.To4()
	}

	if mask := maskFor(ip4); mask != nil {
		bcast := make(net.IP, len(ip4))
		for i := range ip4 {
			bcast[i] = ip4[i] | ^mask[i]
		}
		return bcast
	}

	bcast := make(net.IP, len(ip4))
	copy(bcast, ip4)
	bcast[3] = 255
	return bcast
}

// maskFor returns the IPv4 netmask of the interface owning ip, or nil.
func maskFor(ip net.IP) net.IPMask {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.To4() == nil {
			continue
		}
		if ipNet.Contains(ip) {
			if mask := ipNet.Mask; len(mask) == net.IPv4len {
				return mask
			} else if len(mask) == net.IPv6len {
				return mask[12:]
			}
		}
	}
	return nil
}

// broadcastTargets returns the distinct broadcast destinations for the
// given port: the local subnet's directed broadcast plus the limited
// broadcast address.
func broadcastTargets(port int) []*net.UDPAddr {
	subnet := SubnetBroadcast(LocalIP())
	limited := net.IPv4bcast.To4()

	targets := []*net.UDPAddr{{IP: subnet, Port: port}}
	if !subnet.Equal(limited) {
		targets = append(targets, &net.UDPAddr{IP: limited, Port: port})
	}
	return targets
}
