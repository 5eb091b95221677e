package domain

import (
	"errors"
	"time"
)

// ErrMalformed marks input that is missing a required field.
var ErrMalformed = errors.New("malformed input")

// Observation is one sighting of a device during a scan cycle.
// Only Identifier and ObservedAt are required; every other field is optional
// and an empty value simply contributes no evidence.
type Observation struct {
	Identifier string    `json:"identifier"`
	IP         string    `json:"ip,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
	IPv6       []string  `json:"ipv6,omitempty"`
	OpenPorts  []int     `json:"open_ports,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Validate checks the required fields
func (o Observation) Validate() error {
	if o.Identifier == "" {
		return errors.Join(ErrMalformed, errors.New("observation has no identifier"))
	}
	if o.ObservedAt.IsZero() {
		return errors.Join(ErrMalformed, errors.New("observation "+o.Identifier+" has no timestamp"))
	}
	return nil
}
