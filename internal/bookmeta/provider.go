package bookmeta

import (
	"context"
)

// Capability is a declared ability of a provider, used to filter which
// providers participate in a given query.
type Capability uint8

const (
	// CapISBNLookup means the provider can resolve a normalized ISBN.
	CapISBNLookup Capability = 1 << iota
	// CapTextSearch means the provider supports free-text title/author search.
	CapTextSearch
	// CapImageIdent means the provider identifies books from cover images.
	CapImageIdent
)

// Has reports whether the capability set includes c.
func (caps Capability) Has(c Capability) bool {
	return caps&c != 0
}

// Provider wraps one external book-metadata source behind a common
// interface. Implementations are stateless aside from an HTTP client and
// configuration fixed at construction, and are safe for concurrent use.
//
// Failure contract: provider-local failures (network errors, timeouts,
// non-2xx statuses, malformed payloads, missing API keys) are caught at
// the provider boundary, logged, and surfaced as "no result": nil book,
// nil error. A non-nil error is reserved for context cancellation, so
// a caller abandoning the request stops the chain.
type Provider interface {
	// Name returns the provider's tag, recorded on winning books as Source.
	Name() string

	// Capabilities returns the declared capability set.
	Capabilities() Capability

	// Ping probes connectivity and configuration; used by the ping
	// command, never by the identification path.
	Ping(ctx context.Context) error

	// SearchByISBN resolves a normalized ISBN to a book.
	// Returns nil, nil when the provider has no match or fails locally.
	SearchByISBN(ctx context.Context, isbn string) (*Book, error)

	// SearchByText runs a free-text search and maps each entry
	// independently, silently discarding entries that fail to map.
	// Returns an empty slice on failure, never an error other than
	// cancellation.
	SearchByText(ctx context.Context, query string) ([]*Book, error)
}

// ImageIdentifier is implemented by providers that can identify a book
// from a cover photo.
type ImageIdentifier interface {
	// IdentifyImage extracts a best-guess book from the image bytes.
	// Same failure contract as Provider lookups: nil, nil on no match.
	IdentifyImage(ctx context.Context, image []byte) (*Book, error)
}
