// Package netutil enumerates local IPv4 interfaces for the
// interface-switch feature.
package netutil

import (
	"errors"
	"net"
)

// ErrNoInterfaces is returned when no usable IPv4 interface exists.
var ErrNoInterfaces = errors.New("netutil: no IPv4 interfaces found")

// Interface is one bindable IPv4 address.
type Interface struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// ListIPv4Interfaces returns every up interface with an IPv4 address,
// loopback included.
func ListIPv4Interfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil {
				continue
			}
			out = append(out, Interface{Name: iface.Name, IP: ip.String()})
		}
	}
	return out, nil
}

// DefaultInterfaceIP picks the first non-loopback IPv4, falling back
// to loopback when nothing else is up.
func DefaultInterfaceIP() (string, error) {
	ifaces, err := ListIPv4Interfaces()
	if err != nil {
		return "", err
	}
	if len(ifaces) == 0 {
		return "", ErrNoInterfaces
	}

	for _, iface := range ifaces {
		if !net.ParseIP(iface.IP).IsLoopback() {
			return iface.IP, nil
		}
	}
	return ifaces[0].IP, nil
}
