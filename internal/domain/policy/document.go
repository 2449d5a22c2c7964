package policy

import (
	"fmt"
	"strings"
)

// Document is the full loaded policy tree: every environment, keyed by
// name. It is the unit that is reloaded and swapped atomically as a whole
// (§5: "the loaded policy tree is process-wide, effectively immutable after
// load... reload-able by swapping the whole tree atomically").
type Document struct {
	Environments []*EnvironmentPolicy
}

// NewDocument builds a Document from a set of environments, rejecting
// duplicate (case-insensitive) environment names.
func NewDocument(environments []*EnvironmentPolicy) (*Document, error) {
	seen := make(map[string]bool, len(environments))
	for _, e := range environments {
		lower := strings.ToLower(e.Name)
		if seen[lower] {
			return nil, fmt.Errorf("policy: duplicate environment name %q", e.Name)
		}
		seen[lower] = true
	}
	return &Document{Environments: environments}, nil
}

// Environment looks up an environment by case-insensitive name.
func (d *Document) Environment(name string) (*EnvironmentPolicy, bool) {
	lower := strings.ToLower(name)
	for _, e := range d.Environments {
		if strings.ToLower(e.Name) == lower {
			return e, true
		}
	}
	return nil, false
}
