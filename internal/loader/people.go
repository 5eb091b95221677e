// Package loader reads the operator-maintained people file.
//
// The file maps each person to the device identifiers known to be theirs
// and to the presence entity that reports whether they are home:
//
//	people:
//	  - person: nick
//	    wifi_macs: ["AA:BB:CC:DD:EE:01"]
//	    ha_person_entity: person.nick
//	    tado_name: Nick
//
// The engine only ever reads this file. Suggested additions are printed for
// the operator to apply by hand.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"macsleuth/internal/domain"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPeople is returned when the people file fails validation
var ErrInvalidPeople = errors.New("invalid people file")

// PeopleYAML represents the people file structure
type PeopleYAML struct {
	People []Person `yaml:"people"`
}

// Person is one entry of the people file.
//
// WifiHostnames is accepted so existing people files still parse, but it is
// reserved: a person counts as wifi-present only through WifiMACs, and the
// hints never reach the identity mapping.
type Person struct {
	Name           string   `yaml:"person"`
	WifiMACs       []string `yaml:"wifi_macs,omitempty"`
	WifiHostnames  []string `yaml:"wifi_hostnames,omitempty"`
	HAPersonEntity string   `yaml:"ha_person_entity,omitempty"` // e.g. "person.nick"
	TadoName       string   `yaml:"tado_name,omitempty"`        // Tado mobile device name, case-insensitive
}

// LoadPeople reads and validates the people file at path
func LoadPeople(path string) (*PeopleYAML, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open people file: %w", err)
	}
	defer f.Close()

	people, err := ParsePeople(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return people, nil
}

// ParsePeople decodes and validates a people document
func ParsePeople(r io.Reader) (*PeopleYAML, error) {
	var doc PeopleYAML
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks for missing names, duplicate people and malformed MACs
func (p *PeopleYAML) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(p.People))

	for i, person := range p.People {
		name := strings.TrimSpace(person.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("entry %d has no person name", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("person %q listed twice", name))
		}
		seen[name] = true

		for _, mac := range person.WifiMACs {
			if !isMAC(domain.NormalizeMAC(mac)) {
				errs = append(errs, fmt.Errorf("person %q has malformed MAC %q", name, mac))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidPeople}, errs...)...)
	}
	return nil
}

// Identities converts the file into the engine's read-only identity mapping.
// Only wifi_macs contribute identifiers.
func (p *PeopleYAML) Identities() []domain.PersonIdentity {
	identities := make([]domain.PersonIdentity, 0, len(p.People))
	for _, person := range p.People {
		ids := make([]string, 0, len(person.WifiMACs))
		for _, mac := range person.WifiMACs {
			ids = append(ids, domain.NormalizeMAC(mac))
		}
		identities = append(identities, domain.PersonIdentity{
			Name:        strings.TrimSpace(person.Name),
			Identifiers: ids,
		})
	}
	return identities
}

// Find returns the person with the given name
func (p *PeopleYAML) Find(name string) (Person, bool) {
	for _, person := range p.People {
		if strings.TrimSpace(person.Name) == name {
			return person, true
		}
	}
	return Person{}, false
}

// isMAC reports whether s is in normalized colon form
func isMAC(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i := 2; i < len(s); i += 3 {
		if s[i] != ':' {
			return false
		}
	}
	return true
}
