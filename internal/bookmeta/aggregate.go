package bookmeta

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Aggregator runs identification queries across the provider registry
// and fills gaps on the winning record from the remaining providers.
//
// The default mode walks providers sequentially in priority order and
// stops at the first success. Most queries resolve on the first one or
// two providers, and the free APIs behind the adapters are rate-limited,
// so a parallel burst buys little and risks throttling. Parallel mode
// exists for callers that want the latency anyway; priority still
// decides the winner when several providers succeed.
type Aggregator struct {
	registry *Registry
	policy   *Policy
	store    Store
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPolicy overrides the default priority policy.
func WithPolicy(p *Policy) Option {
	return func(a *Aggregator) {
		if p != nil {
			a.policy = p
		}
	}
}

// WithStore attaches the persistence collaborator used for the
// enrichment write-back.
func WithStore(s Store) Option {
	return func(a *Aggregator) { a.store = s }
}

// NewAggregator creates an aggregator over the given registry.
func NewAggregator(registry *Registry, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: registry,
		policy:   DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IdentifyByISBN resolves an ISBN to one best-effort canonical book.
// Providers are consulted in policy order; the first success wins and
// later providers are never called. Returns nil, nil when every capable
// provider comes up empty.
func (a *Aggregator) IdentifyByISBN(ctx context.Context, isbn string) (*Book, error) {
	isbn = NormalizeISBN(isbn)
	if isbn == "" {
		return nil, ErrInvalidISBN
	}

	providers := a.registry.Ordered(a.policy.LookupOrder, CapISBNLookup)
	if a.policy.Parallel {
		return a.identifyParallel(ctx, providers, isbn)
	}

	for _, p := range providers {
		book, err := p.SearchByISBN(ctx, isbn)
		if err != nil {
			return nil, err
		}
		if book != nil {
			slog.Debug("base record resolved", "provider", p.Name(), "isbn", isbn, "title", book.Title)
			book.Source = p.Name()
			book.MintID()
			return book, nil
		}
		slog.Debug("provider had no match", "provider", p.Name(), "isbn", isbn)
	}
	return nil, nil
}

// identifyParallel fans the ISBN lookup out to all capable providers at
// once. All calls share the request context; when several succeed the
// lowest priority index wins, matching the sequential tie-break.
func (a *Aggregator) identifyParallel(ctx context.Context, providers []Provider, isbn string) (*Book, error) {
	results := make([]*Book, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			book, err := p.SearchByISBN(gctx, isbn)
			if err != nil {
				return err
			}
			results[i] = book
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, book := range results {
		if book != nil {
			book.Source = providers[i].Name()
			book.MintID()
			return book, nil
		}
	}
	return nil, nil
}

// IdentifyByText resolves a free-text title/author query to one book,
// taking the first mapped entry from the first provider whose search
// returns anything.
func (a *Aggregator) IdentifyByText(ctx context.Context, query string) (*Book, error) {
	candidates, err := a.SearchByText(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[0], nil
}

// SearchByText returns the candidate list from the first text-capable
// provider that produces results, for callers that want to offer a
// choice instead of auto-picking the first entry.
func (a *Aggregator) SearchByText(ctx context.Context, query string) ([]*Book, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	for _, p := range a.registry.Ordered(a.policy.LookupOrder, CapTextSearch) {
		books, err := p.SearchByText(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(books) > 0 {
			slog.Debug("text search resolved", "provider", p.Name(), "query", query, "candidates", len(books))
			for _, b := range books {
				b.Source = p.Name()
				b.MintID()
			}
			return books, nil
		}
	}
	return nil, nil
}

// IdentifyByImage runs cover-photo identification against the first
// image-capable provider.
func (a *Aggregator) IdentifyByImage(ctx context.Context, image []byte) (*Book, error) {
	for _, p := range a.registry.WithCapability(CapImageIdent) {
		ident, ok := p.(ImageIdentifier)
		if !ok {
			continue
		}
		book, err := ident.IdentifyImage(ctx, image)
		if err != nil {
			return nil, err
		}
		if book != nil {
			book.Source = p.Name()
			book.MintID()
			return book, nil
		}
	}
	if len(a.registry.WithCapability(CapImageIdent)) == 0 {
		return nil, ErrNoImageProvider
	}
	return nil, nil
}

// EnrichMissingFields fills gaps on a base record, principally the
// cover image, by consulting providers in the cover-priority order
// until one supplies the missing field or the list is exhausted.
// Populated fields are never overwritten, so calling this on an
// already-enriched book is a no-op that performs zero network calls.
// When a store is attached and a cover was found, the enriched book is
// written back so future lookups skip re-enrichment.
func (a *Aggregator) EnrichMissingFields(ctx context.Context, book *Book) (*Book, error) {
	if book == nil || book.CoverImageURL != nil {
		return book, nil
	}

	enriched := book.Clone()
	for _, p := range a.registry.Ordered(a.policy.CoverOrder, CapISBNLookup|CapTextSearch) {
		candidate, err := a.lookupCandidate(ctx, p, enriched)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			continue
		}
		fillGaps(enriched, candidate)
		if enriched.CoverImageURL != nil {
			slog.Debug("cover filled", "provider", p.Name(), "title", enriched.Title)
			break
		}
	}

	if enriched.CoverImageURL == nil {
		return book, nil
	}

	if a.store != nil {
		if saved, err := a.store.Save(ctx, enriched); err != nil {
			slog.Warn("enrichment write-back failed", "title", enriched.Title, "error", err)
		} else if saved != nil {
			enriched = saved
		}
	}
	return enriched, nil
}

// lookupCandidate asks one provider for a field-donor record, by ISBN
// when the base record has one, falling back to a title search.
func (a *Aggregator) lookupCandidate(ctx context.Context, p Provider, base *Book) (*Book, error) {
	if base.ISBN != nil && p.Capabilities().Has(CapISBNLookup) {
		return p.SearchByISBN(ctx, *base.ISBN)
	}
	if !p.Capabilities().Has(CapTextSearch) {
		return nil, nil
	}
	books, err := p.SearchByText(ctx, base.Title)
	if err != nil || len(books) == 0 {
		return nil, err
	}
	return books[0], nil
}

// fillGaps copies fields from donor into base where base has none.
// Identity fields (ID, Source, ExternalID) and Title stay untouched.
func fillGaps(base, donor *Book) {
	if donor == nil {
		return
	}
	if base.CoverImageURL == nil && donor.CoverImageURL != nil {
		base.CoverImageURL = donor.CoverImageURL
	}
	if base.Description == nil && donor.Description != nil {
		base.Description = donor.Description
	}
	if base.Publisher == nil && donor.Publisher != nil {
		base.Publisher = donor.Publisher
	}
	if base.PublishYear == nil && donor.PublishYear != nil {
		base.PublishYear = donor.PublishYear
	}
	if base.PageCount == nil && donor.PageCount != nil {
		base.PageCount = donor.PageCount
	}
	if base.ISBN == nil && donor.ISBN != nil {
		base.ISBN = donor.ISBN
	}
	if len(base.Authors) == 0 && len(donor.Authors) > 0 {
		base.Authors = append([]string(nil), donor.Authors...)
	}
}
