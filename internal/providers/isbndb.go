package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	"github.com/tkorpela/bookdex/internal/cache"
	"github.com/tkorpela/bookdex/internal/errors"
	"github.com/tkorpela/bookdex/internal/ratelimit"
)

const isbndbBaseURL = "https://api2.isbndb.com"

// ISBNdb adapts the ISBNdb API. The provider is key-gated: without an
// API key every lookup no-ops with a warning instead of making a doomed
// network call.
type ISBNdb struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

var _ bookmeta.Provider = (*ISBNdb)(nil)

// NewISBNdb creates the ISBNdb provider.
func NewISBNdb(opts Options) *ISBNdb {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = isbndbBaseURL
	}
	return &ISBNdb{
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		httpClient:  newHTTPClient(opts.timeout()),
		rateLimiter: ratelimit.New(bookmeta.ProviderISBNdb, opts.rate()),
	}
}

func (i *ISBNdb) Name() string {
	return bookmeta.ProviderISBNdb
}

func (i *ISBNdb) Capabilities() bookmeta.Capability {
	return bookmeta.CapISBNLookup | bookmeta.CapTextSearch
}

// Ping verifies the API key against a well-known ISBN.
func (i *ISBNdb) Ping(ctx context.Context) error {
	if i.apiKey == "" {
		return fmt.Errorf("ISBNdb API key not configured")
	}

	reqURL := fmt.Sprintf("%s/book/9780140447934", i.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	req.Header.Set("Authorization", i.apiKey)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ISBNdb ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("ISBNdb API key invalid")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("ISBNdb returned status %d", resp.StatusCode)
	}
	return nil
}

// SearchByISBN resolves an ISBN via the book endpoint.
func (i *ISBNdb) SearchByISBN(ctx context.Context, isbn string) (*bookmeta.Book, error) {
	if i.apiKey == "" {
		slog.Warn("ISBNdb API key not configured, skipping lookup", "isbn", isbn)
		return nil, nil
	}

	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, nil
	}

	cached, _, err := cache.GetOrFetchWithTTL("isbndb_cache", isbn, func() (*cachedBook, error) {
		return i.fetchByISBN(ctx, isbn)
	}, cache.SelectNegativeCacheTTL(func(r *cachedBook) bool {
		return r.NotFound
	}))
	if err != nil {
		return noResult(ctx, i.Name(), isbn, err)
	}
	if cached.NotFound {
		return nil, nil
	}
	return cached.Book, nil
}

// SearchByText queries the books search endpoint.
func (i *ISBNdb) SearchByText(ctx context.Context, query string) ([]*bookmeta.Book, error) {
	if i.apiKey == "" {
		slog.Warn("ISBNdb API key not configured, skipping search", "query", query)
		return nil, nil
	}

	if err := i.rateLimiter.Wait(ctx); err != nil {
		return noResults(ctx, i.Name(), query, err)
	}

	reqURL := fmt.Sprintf("%s/books/%s?pageSize=10", i.baseURL, url.PathEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return noResults(ctx, i.Name(), query, err)
	}
	req.Header.Set("Authorization", i.apiKey)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return noResults(ctx, i.Name(), query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return noResults(ctx, i.Name(), query, fmt.Errorf("search returned status %d", resp.StatusCode))
	}

	var result isbndbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return noResults(ctx, i.Name(), query, fmt.Errorf("decoding search response: %w", err))
	}

	books := make([]*bookmeta.Book, 0, len(result.Books))
	for _, entry := range result.Books {
		if book := mapISBNdbBook(entry); book != nil {
			books = append(books, book)
		}
	}
	return books, nil
}

// isbndbBookResponse matches the single-book response shape.
type isbndbBookResponse struct {
	Book isbndbBook `json:"book"`
}

type isbndbSearchResponse struct {
	Books []isbndbBook `json:"books"`
}

type isbndbBook struct {
	Title         string   `json:"title"`
	ISBN          string   `json:"isbn"`
	ISBN13        string   `json:"isbn13"`
	Publisher     string   `json:"publisher"`
	DatePublished string   `json:"date_published"`
	Pages         *int     `json:"pages"`
	Overview      string   `json:"overview"`
	Synopsis      string   `json:"synopsis"`
	ImageOriginal string   `json:"image_original"`
	Image         string   `json:"image"`
	Authors       []string `json:"authors"`
}

func (i *ISBNdb) fetchByISBN(ctx context.Context, isbn string) (*cachedBook, error) {
	if err := i.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/book/%s", i.baseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", i.apiKey)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return &cachedBook{NotFound: true}, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("ISBNdb API key invalid or expired")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewRateLimitError("ISBNdb rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result isbndbBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	book := mapISBNdbBook(result.Book)
	if book == nil {
		return &cachedBook{NotFound: true}, nil
	}
	return &cachedBook{Book: book}, nil
}

// mapISBNdbBook canonicalizes one ISBNdb book. Returns nil when the
// entry has no title.
func mapISBNdbBook(entry isbndbBook) *bookmeta.Book {
	if entry.Title == "" {
		return nil
	}

	book := &bookmeta.Book{
		Title:   entry.Title,
		Authors: entry.Authors,
	}

	if entry.Publisher != "" {
		book.Publisher = &entry.Publisher
	}
	book.PublishYear = bookmeta.ExtractYear(entry.DatePublished)
	if entry.Pages != nil && *entry.Pages > 0 {
		book.PageCount = entry.Pages
	}
	book.ISBN = bookmeta.PreferISBN13(entry.ISBN13, entry.ISBN)
	if book.ISBN != nil {
		book.ExternalID = *book.ISBN
	}

	// Synopsis is richer than overview when both exist.
	if desc := bookmeta.FirstNonEmpty(entry.Synopsis, entry.Overview); desc != "" {
		book.Description = &desc
	}
	if cover := bookmeta.FirstNonEmpty(entry.ImageOriginal, entry.Image); cover != "" {
		book.CoverImageURL = &cover
	}

	return book
}
