package main

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RawNames is the root of a names YAML file.
type RawNames struct {
	Services []RawService `yaml:"services"`
}

// RawService lists the message and indication names of one service.
type RawService struct {
	Service     string     `yaml:"service"` // Go suffix of the Service constant, e.g. "WDS"
	Messages    []RawEntry `yaml:"messages"`
	Indications []RawEntry `yaml:"indications"`
}

// RawEntry is one named id.
type RawEntry struct {
	ID   uint16 `yaml:"id"`
	Name string `yaml:"name"`
}

var (
	serviceRe = regexp.MustCompile(`^[A-Z][A-Z0-9]*$`)
	nameRe    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ]*$`)
)

// ParseNames parses and validates a names definition from YAML bytes.
func ParseNames(data []byte) (*RawNames, error) {
	var names RawNames
	if err := yaml.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parsing names: %w", err)
	}
	if err := names.Validate(); err != nil {
		return nil, err
	}
	return &names, nil
}

// LoadNames loads and parses a names definition from a file.
func LoadNames(path string) (*RawNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseNames(data)
}

// Validate rejects definitions that would generate invalid or colliding Go
// identifiers.
func (n *RawNames) Validate() error {
	if len(n.Services) == 0 {
		return fmt.Errorf("no services defined")
	}
	seen := make(map[string]bool)
	for _, svc := range n.Services {
		if !serviceRe.MatchString(svc.Service) {
			return fmt.Errorf("invalid service name %q", svc.Service)
		}
		if seen[svc.Service] {
			return fmt.Errorf("service %s defined twice", svc.Service)
		}
		seen[svc.Service] = true

		if err := validateEntries(svc.Service, "message", svc.Messages); err != nil {
			return err
		}
		if err := validateEntries(svc.Service, "indication", svc.Indications); err != nil {
			return err
		}
	}
	return nil
}

func validateEntries(service, kind string, entries []RawEntry) error {
	ids := make(map[uint16]string)
	idents := make(map[string]bool)
	for _, e := range entries {
		if !nameRe.MatchString(e.Name) {
			return fmt.Errorf("%s %s 0x%04X: invalid name %q", service, kind, e.ID, e.Name)
		}
		if prev, ok := ids[e.ID]; ok {
			return fmt.Errorf("%s %s 0x%04X: named both %q and %q", service, kind, e.ID, prev, e.Name)
		}
		ids[e.ID] = e.Name
		ident := goIdent(e.Name)
		if idents[ident] {
			return fmt.Errorf("%s %s %q: identifier %s used twice", service, kind, e.Name, ident)
		}
		idents[ident] = true
	}
	return nil
}
