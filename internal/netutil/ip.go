// Package netutil resolves the host address the agent reports in X-Real-IP.
package netutil

import (
	"errors"
	"net"
)

// ErrNoAddress means no up, non-loopback interface carries an IPv4 address.
var ErrNoAddress = errors.New("no usable IPv4 address")

// LocalIPv4 returns the first IPv4 address of an up, non-loopback interface.
func LocalIPv4() (net.IP, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := FirstIPv4(addrs); ip != nil {
			return ip, nil
		}
	}
	return nil, ErrNoAddress
}

// FirstIPv4 picks the first non-loopback IPv4 address from addrs.
func FirstIPv4(addrs []net.Addr) net.IP {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}
