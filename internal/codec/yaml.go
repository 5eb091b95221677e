package codec

import (
	"fmt"
	"io"
	"sort"
	"time"

	"macsleuth/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML state export and people-file patches
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlState represents the YAML structure for engine state
type yamlState struct {
	Version  int               `yaml:"version"`
	Devices  []yamlDevice      `yaml:"devices"`
	Presence []yamlPresence    `yaml:"presence,omitempty"`
	Ledger   []yamlLedgerEntry `yaml:"ledger,omitempty"`
}

type yamlDevice struct {
	Identifier   string    `yaml:"identifier"`
	Hostnames    []string  `yaml:"hostnames,omitempty"`
	IPv6Suffixes []string  `yaml:"ipv6_suffixes,omitempty"`
	OpenPorts    []int     `yaml:"open_ports,omitempty,flow"`
	DeviceTypes  []string  `yaml:"device_types,omitempty"`
	LastIP       string    `yaml:"last_ip,omitempty"`
	FirstSeen    time.Time `yaml:"first_seen"`
	LastSeen     time.Time `yaml:"last_seen"`
}

type yamlPresence struct {
	Person string           `yaml:"person"`
	Events []yamlTransition `yaml:"events"`
}

type yamlTransition struct {
	At     time.Time `yaml:"at"`
	Kind   string    `yaml:"kind"`
	Source string    `yaml:"source,omitempty"`
}

type yamlLedgerEntry struct {
	Identifier    string    `yaml:"identifier"`
	Person        string    `yaml:"person"`
	LastSuggested time.Time `yaml:"last_suggested"`
}

// Parse imports engine state from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*domain.Snapshot, error) {
	var ys yamlState
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&ys); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if ys.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, ys.Version)
	}

	snap := domain.NewSnapshot()

	// Convert devices
	for _, yd := range ys.Devices {
		snap.Fingerprints[yd.Identifier] = domain.Fingerprint{
			Identifier:   yd.Identifier,
			Hostnames:    yd.Hostnames,
			IPv6Suffixes: yd.IPv6Suffixes,
			OpenPorts:    yd.OpenPorts,
			DeviceTypes:  yd.DeviceTypes,
			LastIP:       yd.LastIP,
			FirstSeen:    yd.FirstSeen,
			LastSeen:     yd.LastSeen,
		}
	}

	// Convert presence history
	for _, yp := range ys.Presence {
		events := make([]domain.PresenceEvent, 0, len(yp.Events))
		for _, yt := range yp.Events {
			events = append(events, domain.PresenceEvent{
				Person: yp.Person,
				At:     yt.At,
				Kind:   domain.TransitionKind(yt.Kind),
				Source: yt.Source,
			})
		}
		snap.Presence[yp.Person] = events
	}

	for _, yl := range ys.Ledger {
		snap.Ledger = append(snap.Ledger, domain.LedgerEntry{
			Identifier:    yl.Identifier,
			Person:        yl.Person,
			LastSuggested: yl.LastSuggested,
		})
	}

	return snap, nil
}

// Export exports engine state to YAML. Devices and people are sorted so the
// output is stable between runs.
func (c *YAMLCodec) Export(snap *domain.Snapshot, w io.Writer) error {
	if snap == nil {
		snap = domain.NewSnapshot()
	}

	ys := yamlState{
		Version: StateVersion,
		Devices: make([]yamlDevice, 0, len(snap.Fingerprints)),
	}

	// Convert devices
	for _, id := range sortedKeys(snap.Fingerprints) {
		fp := snap.Fingerprints[id]
		ys.Devices = append(ys.Devices, yamlDevice{
			Identifier:   id,
			Hostnames:    fp.Hostnames,
			IPv6Suffixes: fp.IPv6Suffixes,
			OpenPorts:    fp.OpenPorts,
			DeviceTypes:  fp.DeviceTypes,
			LastIP:       fp.LastIP,
			FirstSeen:    fp.FirstSeen,
			LastSeen:     fp.LastSeen,
		})
	}

	// Convert presence history
	for _, person := range sortedKeys(snap.Presence) {
		yp := yamlPresence{Person: person}
		for _, ev := range snap.Presence[person] {
			yp.Events = append(yp.Events, yamlTransition{
				At:     ev.At,
				Kind:   string(ev.Kind),
				Source: ev.Source,
			})
		}
		ys.Presence = append(ys.Presence, yp)
	}

	for _, e := range snap.Ledger {
		ys.Ledger = append(ys.Ledger, yamlLedgerEntry{
			Identifier:    e.Identifier,
			Person:        e.Person,
			LastSuggested: e.LastSuggested,
		})
	}

	return encodeYAML(w, &ys)
}

// peoplePatch mirrors the people file layout so the output can be merged
// into it by hand.
type peoplePatch struct {
	People []peoplePatchEntry `yaml:"people"`
}

type peoplePatchEntry struct {
	Person   string   `yaml:"person"`
	WifiMACs []string `yaml:"wifi_macs"`
}

// ExportPeoplePatch writes the identifiers suggested for each person in the
// people file layout. The people file itself is never modified.
func (c *YAMLCodec) ExportPeoplePatch(suggestions []domain.Suggestion, w io.Writer) error {
	byPerson := make(map[string][]string)
	for _, s := range suggestions {
		if s.Person == "" || s.Identifier == "" {
			continue
		}
		byPerson[s.Person] = appendUnique(byPerson[s.Person], s.Identifier)
	}

	patch := peoplePatch{People: make([]peoplePatchEntry, 0, len(byPerson))}
	for _, person := range sortedKeys(byPerson) {
		macs := byPerson[person]
		sort.Strings(macs)
		patch.People = append(patch.People, peoplePatchEntry{Person: person, WifiMACs: macs})
	}

	return encodeYAML(w, &patch)
}

func encodeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
