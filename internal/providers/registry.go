package providers

import (
	"fmt"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	"github.com/tkorpela/bookdex/internal/config"
)

// NewRegistry builds the full provider registry from the loaded
// configuration. The vision provider is only registered when an
// endpoint is configured; a half-configured vision provider is a
// deployment mistake and fails construction.
func NewRegistry() (*bookmeta.Registry, error) {
	registry := bookmeta.NewRegistry(
		NewGoogleBooks(Options{
			APIKey:  config.GoogleBooksAPIKey,
			Timeout: config.HTTPTimeout,
			Rate:    config.ProviderRate("googlebooks"),
		}),
		NewOpenLibrary(Options{
			Timeout: config.HTTPTimeout,
			Rate:    config.ProviderRate("openlibrary"),
		}),
		NewISBNdb(Options{
			APIKey:  config.ISBNdbAPIKey,
			Timeout: config.HTTPTimeout,
			Rate:    config.ProviderRate("isbndb"),
		}),
		NewWikidata(Options{
			Timeout: config.HTTPTimeout,
			Rate:    config.ProviderRate("wikidata"),
		}),
		NewInventaire(Options{
			Timeout: config.HTTPTimeout,
			Rate:    config.ProviderRate("inventaire"),
		}),
	)

	if config.VisionEndpoint != "" || config.VisionAPIKey != "" {
		vision, err := NewVision(Options{
			BaseURL: config.VisionEndpoint,
			APIKey:  config.VisionAPIKey,
			Timeout: config.HTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring vision provider: %w", err)
		}
		registry.Register(vision)
	}

	return registry, nil
}
