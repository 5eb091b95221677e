package domain

import (
	"fmt"
	"net/netip"
	"strings"
)

// NormalizeMAC converts a MAC address to upper-case colon-separated form.
// Inputs that do not contain exactly 12 hex digits once separators are
// removed are returned upper-cased and trimmed, unchanged otherwise.
func NormalizeMAC(mac string) string {
	mac = strings.TrimSpace(mac)
	if mac == "" {
		return ""
	}

	cleaned := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.ToUpper(mac))
	if len(cleaned) != 12 || !isHex(cleaned) {
		return strings.ToUpper(mac)
	}

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(cleaned[i : i+2])
	}
	return b.String()
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// IPv6Suffix returns the interface identifier (low 64 bits) of an IPv6
// address as four hex groups, e.g. "a8bb:ccff:fedd:eeff". Zone IDs are
// ignored. Returns "" for IPv4 or unparsable input.
func IPv6Suffix(addr string) string {
	addr = strings.TrimSpace(addr)
	if idx := strings.IndexByte(addr, '%'); idx >= 0 {
		addr = addr[:idx]
	}
	if idx := strings.IndexByte(addr, '/'); idx >= 0 {
		addr = addr[:idx]
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is6() || ip.Is4In6() {
		return ""
	}

	b := ip.As16()
	return fmt.Sprintf("%x:%x:%x:%x",
		uint16(b[8])<<8|uint16(b[9]),
		uint16(b[10])<<8|uint16(b[11]),
		uint16(b[12])<<8|uint16(b[13]),
		uint16(b[14])<<8|uint16(b[15]),
	)
}
