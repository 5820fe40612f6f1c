// Package bookmeta defines the canonical book record and the
// multi-provider identification pipeline built on top of it.
package bookmeta

import (
	"github.com/google/uuid"
)

// Book is the canonical record assembled from one or more providers.
// Pointer fields distinguish "not set" from "empty value" so the
// enrichment pass can tell a missing field from a deliberately blank one.
type Book struct {
	// ID is a surrogate identifier minted when the record is assembled.
	// It is never provider-assigned.
	ID string `json:"id"`

	// Title is required; a record without a title is discarded before
	// it reaches any caller.
	Title string `json:"title"`

	// Authors are ordered author names. May be empty.
	Authors []string `json:"authors,omitempty"`

	// Publisher is the publishing company name.
	Publisher *string `json:"publisher,omitempty"`

	// PublishYear is extracted from free-form date strings.
	PublishYear *int `json:"publish_year,omitempty"`

	// PageCount is the number of pages.
	PageCount *int `json:"page_count,omitempty"`

	// ISBN is normalized (no hyphens or spaces), ISBN-13 preferred.
	ISBN *string `json:"isbn,omitempty"`

	// Description is the summary or blurb, possibly fetched from a
	// secondary work-level lookup.
	Description *string `json:"description,omitempty"`

	// CoverImageURL is the main enrichment target; the field most
	// commonly missing from primary lookups.
	CoverImageURL *string `json:"cover_image_url,omitempty"`

	// Source names the provider that produced the winning base match.
	Source string `json:"source,omitempty"`

	// ExternalID is the provider-specific key, opaque to everything
	// except follow-up calls inside the same provider.
	ExternalID string `json:"external_id,omitempty"`
}

// NewBook creates a Book with a fresh surrogate id.
func NewBook(title string) *Book {
	return &Book{
		ID:    uuid.NewString(),
		Title: title,
	}
}

// MintID assigns a fresh surrogate id if the book doesn't have one yet.
func (b *Book) MintID() {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
}

// Clone returns a deep copy of the book.
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	out := *b
	if b.Authors != nil {
		out.Authors = append([]string(nil), b.Authors...)
	}
	out.Publisher = clonePtr(b.Publisher)
	out.PublishYear = clonePtr(b.PublishYear)
	out.PageCount = clonePtr(b.PageCount)
	out.ISBN = clonePtr(b.ISBN)
	out.Description = clonePtr(b.Description)
	out.CoverImageURL = clonePtr(b.CoverImageURL)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MatchType describes how a quotation was matched against a book.
type MatchType string

const (
	// MatchExact means the quotation appeared verbatim in the source.
	MatchExact MatchType = "exact"
	// MatchFuzzy means the quotation matched after normalization.
	MatchFuzzy MatchType = "fuzzy"
	// MatchTitleOnly means only the claimed title/author matched.
	MatchTitleOnly MatchType = "title_only"
)

// QuotationSource wraps a matched book for the quote-verification
// consumer. The verification logic itself lives downstream; this type is
// the shape it receives from the pipeline.
type QuotationSource struct {
	Book       *Book     `json:"book"`
	Confidence float64   `json:"confidence"`
	Match      MatchType `json:"match"`
}
