package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Fingerprint is the evidence accumulated for one identifier.
//
// Set-valued fields are sorted and de-duplicated. They never shrink during
// Merge: a port seen once stays recorded even if a later scan misses it,
// because services may be transiently stopped.
type Fingerprint struct {
	Identifier   string    `json:"identifier"`
	Hostnames    []string  `json:"hostnames,omitempty"`
	IPv6Suffixes []string  `json:"ipv6_suffixes,omitempty"`
	OpenPorts    []int     `json:"open_ports,omitempty"`
	DeviceTypes  []string  `json:"device_types,omitempty"`
	LastIP       string    `json:"last_ip,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// NewFingerprint creates an empty fingerprint first seen at the given time
func NewFingerprint(identifier string, seen time.Time) Fingerprint {
	return Fingerprint{
		Identifier: identifier,
		FirstSeen:  seen,
		LastSeen:   seen,
	}
}

// Merge unions the observation's evidence into the fingerprint.
// LastSeen only moves forward; FirstSeen is never touched.
func (f *Fingerprint) Merge(obs Observation) {
	if h := strings.ToLower(strings.TrimSpace(obs.Hostname)); h != "" {
		f.Hostnames = insertSorted(f.Hostnames, h)
	}

	for _, addr := range obs.IPv6 {
		if suffix := IPv6Suffix(addr); suffix != "" {
			f.IPv6Suffixes = insertSorted(f.IPv6Suffixes, suffix)
		}
	}

	for _, port := range obs.OpenPorts {
		if port > 0 && port <= 65535 {
			f.OpenPorts = insertSorted(f.OpenPorts, port)
		}
	}

	if dt := strings.TrimSpace(obs.DeviceType); dt != "" {
		f.DeviceTypes = insertSorted(f.DeviceTypes, dt)
	}

	if obs.ObservedAt.After(f.LastSeen) {
		f.LastSeen = obs.ObservedAt
		if obs.IP != "" {
			f.LastIP = obs.IP
		}
	} else if f.LastIP == "" && obs.IP != "" {
		f.LastIP = obs.IP
	}
}

// IsEmpty reports whether the fingerprint carries no scoring evidence
func (f Fingerprint) IsEmpty() bool {
	return len(f.Hostnames) == 0 &&
		len(f.IPv6Suffixes) == 0 &&
		len(f.OpenPorts) == 0 &&
		len(f.DeviceTypes) == 0
}

// Clone returns a deep copy
func (f Fingerprint) Clone() Fingerprint {
	f.Hostnames = slices.Clone(f.Hostnames)
	f.IPv6Suffixes = slices.Clone(f.IPv6Suffixes)
	f.OpenPorts = slices.Clone(f.OpenPorts)
	f.DeviceTypes = slices.Clone(f.DeviceTypes)
	return f
}

// Normalize sorts and de-duplicates the set fields. Used after decoding
// documents written by hand or by older versions.
func (f *Fingerprint) Normalize() {
	f.Hostnames = sortCompact(f.Hostnames)
	f.IPv6Suffixes = sortCompact(f.IPv6Suffixes)
	f.OpenPorts = sortCompact(f.OpenPorts)
	f.DeviceTypes = sortCompact(f.DeviceTypes)
}

func sortCompact[T cmp.Ordered](set []T) []T {
	if len(set) == 0 {
		return nil
	}
	slices.Sort(set)
	return slices.Compact(set)
}

func insertSorted[T cmp.Ordered](set []T, v T) []T {
	i, found := slices.BinarySearch(set, v)
	if found {
		return set
	}
	return slices.Insert(set, i, v)
}
