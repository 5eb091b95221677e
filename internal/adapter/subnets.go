package adapter

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// virtualPrefixes are interface names used by containers and overlays
var virtualPrefixes = []string{"veth", "docker", "br-", "cni", "flannel", "virbr", "tailscale", "wg"}

// DetectLocalSubnets returns the private IPv4 subnets of the host's active
// interfaces, suitable as nmap targets. Subnets wider than /24 are narrowed
// to the /24 around the interface address.
func DetectLocalSubnets() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var addrs []*net.IPNet
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}

		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range ifaceAddrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				addrs = append(addrs, ipnet)
			}
		}
	}

	return privateSubnets(addrs), nil
}

func isVirtualInterface(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// privateSubnets keeps RFC1918 IPv4 networks, deduplicated and sorted
func privateSubnets(addrs []*net.IPNet) []string {
	seen := make(map[string]bool)
	var subnets []string

	for _, ipnet := range addrs {
		ip4 := ipnet.IP.To4()
		if ip4 == nil || !ip4.IsPrivate() {
			continue
		}

		ones, bits := ipnet.Mask.Size()
		if bits != 32 || ones == 32 {
			continue
		}
		mask := ipnet.Mask
		if ones < 24 {
			ones = 24
			mask = net.CIDRMask(24, 32)
		}

		subnet := fmt.Sprintf("%s/%d", ip4.Mask(mask), ones)
		if !seen[subnet] {
			seen[subnet] = true
			subnets = append(subnets, subnet)
		}
	}

	sort.Strings(subnets)
	return subnets
}
