package bookmeta

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider name tags. The policy files and config refer to providers by
// these strings.
const (
	ProviderGoogleBooks = "GoogleBooks"
	ProviderOpenLibrary = "OpenLibrary"
	ProviderISBNdb      = "ISBNdb"
	ProviderWikidata    = "Wikidata"
	ProviderInventaire  = "Inventaire"
	ProviderVision      = "Vision"
)

// Policy is the configurable priority ordering for the pipeline.
// The base lookup order and the cover enrichment order are distinct:
// the base order favors hit rate, the cover order favors image quality.
type Policy struct {
	// LookupOrder is the provider priority for the base record lookup.
	LookupOrder []string `yaml:"lookup_order"`

	// CoverOrder is the provider priority for cover enrichment.
	CoverOrder []string `yaml:"cover_order"`

	// Parallel enables concurrent fan-out for the base ISBN lookup.
	// The lowest-priority-index result still wins; this only trades
	// provider-friendliness for latency.
	Parallel bool `yaml:"parallel"`
}

// DefaultPolicy returns the built-in ordering: general search providers
// first for the base record, cover-quality-first for enrichment.
func DefaultPolicy() *Policy {
	return &Policy{
		LookupOrder: []string{
			ProviderGoogleBooks,
			ProviderOpenLibrary,
			ProviderISBNdb,
			ProviderWikidata,
			ProviderInventaire,
		},
		CoverOrder: []string{
			ProviderISBNdb,
			ProviderOpenLibrary,
			ProviderGoogleBooks,
			ProviderWikidata,
			ProviderInventaire,
		},
	}
}

// LoadPolicy reads a priority policy from a YAML file. Orders omitted
// from the file fall back to the defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	policy := DefaultPolicy()
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	return policy, nil
}
