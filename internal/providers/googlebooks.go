package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	"github.com/tkorpela/bookdex/internal/cache"
	"github.com/tkorpela/bookdex/internal/errors"
	"github.com/tkorpela/bookdex/internal/ratelimit"
)

const googleBooksBaseURL = "https://www.googleapis.com/books/v1"

// GoogleBooks adapts the Google Books volumes API. Works without an API
// key at a reduced quota.
type GoogleBooks struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

var _ bookmeta.Provider = (*GoogleBooks)(nil)

// NewGoogleBooks creates the Google Books provider.
func NewGoogleBooks(opts Options) *GoogleBooks {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = googleBooksBaseURL
	}
	return &GoogleBooks{
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		httpClient:  newHTTPClient(opts.timeout()),
		rateLimiter: ratelimit.New(bookmeta.ProviderGoogleBooks, opts.rate()),
	}
}

func (g *GoogleBooks) Name() string {
	return bookmeta.ProviderGoogleBooks
}

func (g *GoogleBooks) Capabilities() bookmeta.Capability {
	return bookmeta.CapISBNLookup | bookmeta.CapTextSearch
}

// Ping issues a minimal search that should always succeed.
func (g *GoogleBooks) Ping(ctx context.Context) error {
	reqURL := fmt.Sprintf("%s/volumes?q=isbn:0140447938&maxResults=1", g.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google books ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google books returned status %d", resp.StatusCode)
	}
	return nil
}

// SearchByISBN resolves an ISBN via the volumes endpoint.
func (g *GoogleBooks) SearchByISBN(ctx context.Context, isbn string) (*bookmeta.Book, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, nil
	}

	cached, _, err := cache.GetOrFetchWithTTL("googlebooks_cache", "isbn:"+isbn, func() (*cachedBook, error) {
		return g.fetchFirst(ctx, "isbn:"+isbn)
	}, cache.SelectNegativeCacheTTL(func(r *cachedBook) bool {
		return r.NotFound
	}))
	if err != nil {
		return noResult(ctx, g.Name(), isbn, err)
	}
	if cached.NotFound {
		return nil, nil
	}
	return cached.Book, nil
}

// SearchByText runs a free-text search and maps each entry
// independently, discarding entries without a title.
func (g *GoogleBooks) SearchByText(ctx context.Context, query string) ([]*bookmeta.Book, error) {
	result, err := g.fetchVolumes(ctx, query)
	if err != nil {
		return noResults(ctx, g.Name(), query, err)
	}

	books := make([]*bookmeta.Book, 0, len(result.Items))
	for _, item := range result.Items {
		if book := mapGoogleVolume(item); book != nil {
			books = append(books, book)
		}
	}
	return books, nil
}

// cachedBook wraps a mapped book with a not-found marker for negative
// caching. Shared by all cached adapters.
type cachedBook struct {
	Book     *bookmeta.Book `json:"book"`
	NotFound bool           `json:"not_found"`
}

// googleVolumesResponse matches the volumes list response.
type googleVolumesResponse struct {
	TotalItems int            `json:"totalItems"`
	Items      []googleVolume `json:"items"`
}

type googleVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Authors             []string `json:"authors"`
		Publisher           string   `json:"publisher"`
		PublishedDate       string   `json:"publishedDate"`
		Description         string   `json:"description"`
		PageCount           int      `json:"pageCount"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		ImageLinks struct {
			Thumbnail      string `json:"thumbnail"`
			SmallThumbnail string `json:"smallThumbnail"`
		} `json:"imageLinks"`
	} `json:"volumeInfo"`
}

func (g *GoogleBooks) fetchFirst(ctx context.Context, query string) (*cachedBook, error) {
	result, err := g.fetchVolumes(ctx, query)
	if err != nil {
		return nil, err
	}
	if result.TotalItems == 0 || len(result.Items) == 0 {
		return &cachedBook{NotFound: true}, nil
	}
	book := mapGoogleVolume(result.Items[0])
	if book == nil {
		return &cachedBook{NotFound: true}, nil
	}
	return &cachedBook{Book: book}, nil
}

func (g *GoogleBooks) fetchVolumes(ctx context.Context, query string) (*googleVolumesResponse, error) {
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/volumes?q=%s", g.baseURL, url.QueryEscape(query))
	if g.apiKey != "" {
		reqURL = fmt.Sprintf("%s&key=%s", reqURL, g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewRateLimitError("google books rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result googleVolumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

// mapGoogleVolume canonicalizes one volume entry. Returns nil when the
// entry has no title.
func mapGoogleVolume(item googleVolume) *bookmeta.Book {
	info := item.VolumeInfo
	if info.Title == "" {
		return nil
	}

	book := &bookmeta.Book{
		Title:      info.Title,
		Authors:    info.Authors,
		ExternalID: item.ID,
	}

	if info.Publisher != "" {
		book.Publisher = &info.Publisher
	}
	book.PublishYear = bookmeta.ExtractYear(info.PublishedDate)
	if info.PageCount > 0 {
		pages := info.PageCount
		book.PageCount = &pages
	}
	if info.Description != "" {
		book.Description = &info.Description
	}

	var isbn13, isbn10 string
	for _, id := range info.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			isbn13 = id.Identifier
		case "ISBN_10":
			isbn10 = id.Identifier
		}
	}
	book.ISBN = bookmeta.PreferISBN13(isbn13, isbn10)

	if cover := bookmeta.FirstNonEmpty(info.ImageLinks.Thumbnail, info.ImageLinks.SmallThumbnail); cover != "" {
		// zoom=0 serves the higher-quality rendition.
		cover = strings.Replace(cover, "zoom=1", "zoom=0", 1)
		book.CoverImageURL = &cover
	}

	return book
}
