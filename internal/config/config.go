// Package config wires viper-backed configuration for the pipeline.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Global configuration values, populated by InitConfig.
var (
	// HTTPTimeout bounds every provider HTTP call so one hanging
	// provider cannot stall the sequential chain.
	HTTPTimeout time.Duration
	// ISBNdbAPIKey gates the ISBNdb provider; without it the provider
	// no-ops.
	ISBNdbAPIKey string
	// GoogleBooksAPIKey is optional; Google Books works unauthenticated
	// at a lower quota.
	GoogleBooksAPIKey string
	// VisionEndpoint and VisionAPIKey configure the cover analyzer.
	// The vision provider refuses to construct without them.
	VisionEndpoint string
	VisionAPIKey   string
)

// InitConfig sets defaults and loads the global configuration values.
func InitConfig() {
	viper.SetDefault("http.timeout", "10s")
	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h")
	viper.SetDefault("catalog.dbfile", "./bookdex.db")

	// Per-provider request rates (requests per second). The free APIs
	// throttle aggressively, so defaults stay at 1.
	viper.SetDefault("providers.googlebooks.rate", 1.0)
	viper.SetDefault("providers.openlibrary.rate", 1.0)
	viper.SetDefault("providers.isbndb.rate", 1.0)
	viper.SetDefault("providers.wikidata.rate", 1.0)
	viper.SetDefault("providers.inventaire.rate", 1.0)

	HTTPTimeout = viper.GetDuration("http.timeout")
	ISBNdbAPIKey = viper.GetString("providers.isbndb.api_key")
	GoogleBooksAPIKey = viper.GetString("providers.googlebooks.api_key")
	VisionEndpoint = viper.GetString("providers.vision.endpoint")
	VisionAPIKey = viper.GetString("providers.vision.api_key")
}

// ProviderRate returns the configured request rate for a provider.
func ProviderRate(name string) float64 {
	rate := viper.GetFloat64("providers." + name + ".rate")
	if rate <= 0 {
		return 1.0
	}
	return rate
}
