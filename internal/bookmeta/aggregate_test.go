package bookmeta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable provider for engine tests.
type fakeProvider struct {
	name       string
	caps       Capability
	isbnResult *Book
	textResult []*Book
	isbnCalls  int
	textCalls  int
}

func (f *fakeProvider) Name() string             { return f.name }
func (f *fakeProvider) Capabilities() Capability { return f.caps }
func (f *fakeProvider) Ping(context.Context) error {
	return nil
}

func (f *fakeProvider) SearchByISBN(ctx context.Context, isbn string) (*Book, error) {
	f.isbnCalls++
	if f.isbnResult == nil {
		return nil, nil
	}
	return f.isbnResult.Clone(), nil
}

func (f *fakeProvider) SearchByText(ctx context.Context, query string) ([]*Book, error) {
	f.textCalls++
	out := make([]*Book, 0, len(f.textResult))
	for _, b := range f.textResult {
		out = append(out, b.Clone())
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func policyFor(providers ...*fakeProvider) *Policy {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.name
	}
	return &Policy{LookupOrder: names, CoverOrder: names}
}

func registryFor(providers ...*fakeProvider) *Registry {
	registry := NewRegistry()
	for _, p := range providers {
		registry.Register(p)
	}
	return registry
}

func TestIdentifyByISBNFirstSuccessWins(t *testing.T) {
	a := &fakeProvider{name: "A", caps: CapISBNLookup}
	b := &fakeProvider{name: "B", caps: CapISBNLookup, isbnResult: &Book{Title: "Book X"}}
	c := &fakeProvider{name: "C", caps: CapISBNLookup, isbnResult: &Book{Title: "Book Y"}}

	agg := NewAggregator(registryFor(a, b, c), WithPolicy(policyFor(a, b, c)))

	book, err := agg.IdentifyByISBN(context.Background(), "9780132350884")
	require.NoError(t, err)
	require.NotNil(t, book)
	require.Equal(t, "Book X", book.Title)
	require.Equal(t, "B", book.Source)
	require.NotEmpty(t, book.ID)

	require.Equal(t, 1, a.isbnCalls)
	require.Equal(t, 1, b.isbnCalls)
	require.Equal(t, 0, c.isbnCalls, "later providers must never be consulted after a success")
}

func TestIdentifyByISBNNotFound(t *testing.T) {
	a := &fakeProvider{name: "A", caps: CapISBNLookup}
	b := &fakeProvider{name: "B", caps: CapISBNLookup}

	agg := NewAggregator(registryFor(a, b), WithPolicy(policyFor(a, b)))

	book, err := agg.IdentifyByISBN(context.Background(), "9780132350884")
	require.NoError(t, err)
	require.Nil(t, book)
	require.Equal(t, 1, a.isbnCalls)
	require.Equal(t, 1, b.isbnCalls)
}

func TestIdentifyByISBNInvalidInput(t *testing.T) {
	agg := NewAggregator(registryFor(), WithPolicy(&Policy{}))

	_, err := agg.IdentifyByISBN(context.Background(), " - ")
	require.ErrorIs(t, err, ErrInvalidISBN)
}

func TestIdentifyByISBNSkipsIncapableProviders(t *testing.T) {
	textOnly := &fakeProvider{name: "T", caps: CapTextSearch, isbnResult: &Book{Title: "nope"}}
	isbn := &fakeProvider{name: "I", caps: CapISBNLookup, isbnResult: &Book{Title: "yes"}}

	agg := NewAggregator(registryFor(textOnly, isbn), WithPolicy(policyFor(textOnly, isbn)))

	book, err := agg.IdentifyByISBN(context.Background(), "9780132350884")
	require.NoError(t, err)
	require.Equal(t, "yes", book.Title)
	require.Equal(t, 0, textOnly.isbnCalls)
}

func TestIdentifyByISBNParallelPriorityWins(t *testing.T) {
	a := &fakeProvider{name: "A", caps: CapISBNLookup, isbnResult: &Book{Title: "First"}}
	b := &fakeProvider{name: "B", caps: CapISBNLookup, isbnResult: &Book{Title: "Second"}}

	policy := policyFor(a, b)
	policy.Parallel = true
	agg := NewAggregator(registryFor(a, b), WithPolicy(policy))

	book, err := agg.IdentifyByISBN(context.Background(), "9780132350884")
	require.NoError(t, err)
	require.NotNil(t, book)
	require.Equal(t, "First", book.Title, "lowest priority index wins even in parallel mode")
	require.Equal(t, "A", book.Source)
}

func TestIdentifyByTextTakesFirstEntry(t *testing.T) {
	empty := &fakeProvider{name: "E", caps: CapTextSearch}
	full := &fakeProvider{name: "F", caps: CapTextSearch, textResult: []*Book{
		{Title: "First Entry"},
		{Title: "Second Entry"},
	}}

	agg := NewAggregator(registryFor(empty, full), WithPolicy(policyFor(empty, full)))

	book, err := agg.IdentifyByText(context.Background(), "clean code")
	require.NoError(t, err)
	require.NotNil(t, book)
	require.Equal(t, "First Entry", book.Title)
	require.Equal(t, "F", book.Source)
	require.Equal(t, 1, empty.textCalls)
}

func TestIdentifyByTextEmptyQuery(t *testing.T) {
	agg := NewAggregator(registryFor(), WithPolicy(&Policy{}))

	_, err := agg.IdentifyByText(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestEnrichMissingFieldsIdempotent(t *testing.T) {
	p := &fakeProvider{name: "P", caps: CapISBNLookup, isbnResult: &Book{
		Title:         "Donor",
		CoverImageURL: strPtr("http://example.com/cover.jpg"),
	}}
	agg := NewAggregator(registryFor(p), WithPolicy(policyFor(p)))

	book := &Book{
		ID:            "id-1",
		Title:         "Already Enriched",
		CoverImageURL: strPtr("http://example.com/existing.jpg"),
	}

	enriched, err := agg.EnrichMissingFields(context.Background(), book)
	require.NoError(t, err)
	require.Same(t, book, enriched, "already-enriched book must come back unchanged")
	require.Equal(t, 0, p.isbnCalls, "no network calls for an already-enriched book")
	require.Equal(t, 0, p.textCalls)
}

func TestEnrichMissingFieldsFillsGapFromPriorityOrder(t *testing.T) {
	noCover := &fakeProvider{name: "P1", caps: CapISBNLookup, isbnResult: &Book{
		Title: "Donor Without Cover",
	}}
	withCover := &fakeProvider{name: "P2", caps: CapISBNLookup, isbnResult: &Book{
		Title:         "Donor With Cover",
		CoverImageURL: strPtr("url-X"),
	}}
	agg := NewAggregator(registryFor(noCover, withCover), WithPolicy(policyFor(noCover, withCover)))

	base := &Book{
		ID:      "id-1",
		Title:   "Base",
		Authors: []string{"Author One"},
		ISBN:    strPtr("9780132350884"),
		Source:  "Original",
	}

	enriched, err := agg.EnrichMissingFields(context.Background(), base)
	require.NoError(t, err)
	require.NotNil(t, enriched)
	require.NotNil(t, enriched.CoverImageURL)
	require.Equal(t, "url-X", *enriched.CoverImageURL)

	// Everything already populated stays untouched.
	require.Equal(t, "Base", enriched.Title)
	require.Equal(t, []string{"Author One"}, enriched.Authors)
	require.Equal(t, "Original", enriched.Source)
	require.Equal(t, "id-1", enriched.ID)

	require.Equal(t, 1, noCover.isbnCalls)
	require.Equal(t, 1, withCover.isbnCalls)
}

func TestEnrichMissingFieldsNeverOverwrites(t *testing.T) {
	donor := &fakeProvider{name: "P", caps: CapISBNLookup, isbnResult: &Book{
		Title:         "Donor",
		Publisher:     strPtr("Donor House"),
		CoverImageURL: strPtr("donor-cover"),
		Description:   strPtr("donor description"),
	}}
	agg := NewAggregator(registryFor(donor), WithPolicy(policyFor(donor)))

	base := &Book{
		ID:        "id-1",
		Title:     "Base",
		Publisher: strPtr("Original House"),
		ISBN:      strPtr("9780132350884"),
	}

	enriched, err := agg.EnrichMissingFields(context.Background(), base)
	require.NoError(t, err)
	require.Equal(t, "Original House", *enriched.Publisher, "populated fields are never overwritten")
	require.Equal(t, "donor-cover", *enriched.CoverImageURL)
	require.Equal(t, "donor description", *enriched.Description)
}

func TestEnrichMissingFieldsFallsBackToTitleSearch(t *testing.T) {
	textDonor := &fakeProvider{name: "P", caps: CapTextSearch, textResult: []*Book{{
		Title:         "Donor",
		CoverImageURL: strPtr("text-cover"),
	}}}
	agg := NewAggregator(registryFor(textDonor), WithPolicy(policyFor(textDonor)))

	base := &Book{ID: "id-1", Title: "No ISBN Book"}

	enriched, err := agg.EnrichMissingFields(context.Background(), base)
	require.NoError(t, err)
	require.Equal(t, "text-cover", *enriched.CoverImageURL)
	require.Equal(t, 1, textDonor.textCalls)
}

// recordingStore captures write-backs.
type recordingStore struct {
	saved []*Book
}

func (s *recordingStore) Save(ctx context.Context, book *Book) (*Book, error) {
	s.saved = append(s.saved, book)
	return book, nil
}

func TestEnrichMissingFieldsWritesBack(t *testing.T) {
	donor := &fakeProvider{name: "P", caps: CapISBNLookup, isbnResult: &Book{
		Title:         "Donor",
		CoverImageURL: strPtr("cover-url"),
	}}
	store := &recordingStore{}
	agg := NewAggregator(registryFor(donor), WithPolicy(policyFor(donor)), WithStore(store))

	base := &Book{ID: "id-1", Title: "Base", ISBN: strPtr("9780132350884")}

	enriched, err := agg.EnrichMissingFields(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	require.Equal(t, enriched.ID, store.saved[0].ID)
}

func TestEnrichMissingFieldsNoWriteBackWhenCoverStillMissing(t *testing.T) {
	empty := &fakeProvider{name: "P", caps: CapISBNLookup}
	store := &recordingStore{}
	agg := NewAggregator(registryFor(empty), WithPolicy(policyFor(empty)), WithStore(store))

	base := &Book{ID: "id-1", Title: "Base", ISBN: strPtr("9780132350884")}

	enriched, err := agg.EnrichMissingFields(context.Background(), base)
	require.NoError(t, err)
	require.Same(t, base, enriched)
	require.Empty(t, store.saved)
}
