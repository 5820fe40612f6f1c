package bookmeta

import "context"

// Store is the persistence collaborator. The pipeline uses it for one
// thing only: writing back a book after enrichment found a cover, so
// future lookups skip re-enrichment. Write concurrency is the store's
// own concern.
type Store interface {
	// Save persists the book and returns the persisted form.
	Save(ctx context.Context, book *Book) (*Book, error)
}
