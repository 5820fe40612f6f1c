package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	"github.com/tkorpela/bookdex/internal/cache"
	"github.com/tkorpela/bookdex/internal/ratelimit"
)

const (
	openLibraryBaseURL   = "https://openlibrary.org"
	openLibraryCoversURL = "https://covers.openlibrary.org"
)

// OpenLibrary adapts the Open Library books and search APIs. ISBN
// lookups perform a second hop against the work endpoint to pick up a
// description the primary response only references by key; that hop
// failing never invalidates the primary result.
type OpenLibrary struct {
	baseURL     string
	coversURL   string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

var _ bookmeta.Provider = (*OpenLibrary)(nil)

// NewOpenLibrary creates the Open Library provider.
func NewOpenLibrary(opts Options) *OpenLibrary {
	baseURL := opts.BaseURL
	coversURL := openLibraryCoversURL
	if baseURL == "" {
		baseURL = openLibraryBaseURL
	} else {
		// Tests point both endpoints at the same stub server.
		coversURL = baseURL
	}
	return &OpenLibrary{
		baseURL:     baseURL,
		coversURL:   coversURL,
		httpClient:  newHTTPClient(opts.timeout()),
		rateLimiter: ratelimit.New(bookmeta.ProviderOpenLibrary, opts.rate()),
	}
}

func (o *OpenLibrary) Name() string {
	return bookmeta.ProviderOpenLibrary
}

func (o *OpenLibrary) Capabilities() bookmeta.Capability {
	return bookmeta.CapISBNLookup | bookmeta.CapTextSearch
}

// Ping checks that the site root answers.
func (o *OpenLibrary) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openlibrary ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openlibrary returned status %d", resp.StatusCode)
	}
	return nil
}

// SearchByISBN resolves an ISBN through the bibkeys data endpoint.
func (o *OpenLibrary) SearchByISBN(ctx context.Context, isbn string) (*bookmeta.Book, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, nil
	}

	cached, _, err := cache.GetOrFetchWithTTL("openlibrary_cache", isbn, func() (*cachedBook, error) {
		return o.fetchByISBN(ctx, isbn)
	}, cache.SelectNegativeCacheTTL(func(r *cachedBook) bool {
		return r.NotFound
	}))
	if err != nil {
		return noResult(ctx, o.Name(), isbn, err)
	}
	if cached.NotFound {
		return nil, nil
	}
	return cached.Book, nil
}

// SearchByText queries the search endpoint and maps each doc
// independently, discarding title-less entries.
func (o *OpenLibrary) SearchByText(ctx context.Context, query string) ([]*bookmeta.Book, error) {
	if err := o.rateLimiter.Wait(ctx); err != nil {
		return noResults(ctx, o.Name(), query, err)
	}

	reqURL := fmt.Sprintf("%s/search.json?q=%s&limit=10", o.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return noResults(ctx, o.Name(), query, err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return noResults(ctx, o.Name(), query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return noResults(ctx, o.Name(), query, fmt.Errorf("search returned status %d", resp.StatusCode))
	}

	var result openLibrarySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return noResults(ctx, o.Name(), query, fmt.Errorf("decoding search response: %w", err))
	}

	books := make([]*bookmeta.Book, 0, len(result.Docs))
	for _, doc := range result.Docs {
		if book := o.mapSearchDoc(doc); book != nil {
			books = append(books, book)
		}
	}
	return books, nil
}

// openLibraryDataResponse matches the jscmd=data book shape.
type openLibraryDataResponse struct {
	Title      string `json:"title"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Cover struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
		Small  string `json:"small"`
	} `json:"cover"`
	Key           string `json:"key"`
	NumberOfPages int    `json:"number_of_pages"`
	PublishDate   string `json:"publish_date"`
}

// openLibraryEditionResponse matches the /isbn/{isbn}.json edition shape.
type openLibraryEditionResponse struct {
	Works []struct {
		Key string `json:"key"`
	} `json:"works"`
	Description any `json:"description"`
}

// openLibraryWorkResponse matches the /works/{key}.json shape.
type openLibraryWorkResponse struct {
	Description any `json:"description"`
}

type openLibrarySearchResponse struct {
	Docs []openLibrarySearchDoc `json:"docs"`
}

type openLibrarySearchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	FirstPublishYear int      `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	CoverID          int      `json:"cover_i"`
	Publisher        []string `json:"publisher"`
}

func (o *OpenLibrary) fetchByISBN(ctx context.Context, isbn string) (*cachedBook, error) {
	if err := o.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&format=json&jscmd=data", o.baseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result map[string]openLibraryDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	data, ok := result["ISBN:"+isbn]
	if !ok || data.Title == "" {
		return &cachedBook{NotFound: true}, nil
	}

	book := &bookmeta.Book{
		Title:      data.Title,
		ExternalID: data.Key,
	}
	normalized := isbn
	book.ISBN = &normalized

	for _, author := range data.Authors {
		if author.Name != "" {
			book.Authors = append(book.Authors, author.Name)
		}
	}
	if len(data.Publishers) > 0 && data.Publishers[0].Name != "" {
		book.Publisher = &data.Publishers[0].Name
	}
	book.PublishYear = bookmeta.ExtractYear(data.PublishDate)
	if data.NumberOfPages > 0 {
		pages := data.NumberOfPages
		book.PageCount = &pages
	}
	if cover := bookmeta.FirstNonEmpty(data.Cover.Large, data.Cover.Medium, data.Cover.Small); cover != "" {
		book.CoverImageURL = &cover
	}

	// Second hop: the data endpoint omits descriptions, which live on
	// the work record. Failure here leaves the primary result intact.
	if desc := o.fetchWorkDescription(ctx, isbn); desc != "" {
		book.Description = &desc
	}

	return &cachedBook{Book: book}, nil
}

// fetchWorkDescription follows the edition's work reference to its
// description. Any failure returns an empty string.
func (o *OpenLibrary) fetchWorkDescription(ctx context.Context, isbn string) string {
	edition, err := o.fetchJSON(ctx, fmt.Sprintf("%s/isbn/%s.json", o.baseURL, isbn))
	if err != nil {
		return ""
	}
	var ed openLibraryEditionResponse
	if err := json.Unmarshal(edition, &ed); err != nil {
		return ""
	}

	if desc := decodeOLDescription(ed.Description); desc != "" {
		return desc
	}
	if len(ed.Works) == 0 || ed.Works[0].Key == "" {
		return ""
	}

	work, err := o.fetchJSON(ctx, fmt.Sprintf("%s%s.json", o.baseURL, ed.Works[0].Key))
	if err != nil {
		return ""
	}
	var w openLibraryWorkResponse
	if err := json.Unmarshal(work, &w); err != nil {
		return ""
	}
	return decodeOLDescription(w.Description)
}

// decodeOLDescription handles the two shapes Open Library uses for
// descriptions: a plain string, or {"type": ..., "value": "..."}.
func decodeOLDescription(desc any) string {
	switch v := desc.(type) {
	case string:
		return v
	case map[string]any:
		if value, ok := v["value"].(string); ok {
			return value
		}
	}
	return ""
}

func (o *OpenLibrary) fetchJSON(ctx context.Context, reqURL string) (json.RawMessage, error) {
	if err := o.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request returned status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mapSearchDoc canonicalizes one search result. Returns nil when the
// doc has no title.
func (o *OpenLibrary) mapSearchDoc(doc openLibrarySearchDoc) *bookmeta.Book {
	if doc.Title == "" {
		return nil
	}

	book := &bookmeta.Book{
		Title:      doc.Title,
		Authors:    doc.AuthorName,
		ExternalID: doc.Key,
	}
	if doc.FirstPublishYear > 0 {
		year := doc.FirstPublishYear
		book.PublishYear = &year
	}
	if len(doc.Publisher) > 0 && doc.Publisher[0] != "" {
		book.Publisher = &doc.Publisher[0]
	}
	if len(doc.ISBN) > 0 {
		// Search docs list ISBNs unsorted; prefer the first 13-digit one.
		var isbn13, isbn10 string
		for _, id := range doc.ISBN {
			normalized := bookmeta.NormalizeISBN(id)
			switch {
			case len(normalized) == 13 && isbn13 == "":
				isbn13 = normalized
			case len(normalized) == 10 && isbn10 == "":
				isbn10 = normalized
			}
		}
		book.ISBN = bookmeta.PreferISBN13(isbn13, isbn10)
	}
	if doc.CoverID > 0 {
		cover := fmt.Sprintf("%s/b/id/%d-L.jpg", o.coversURL, doc.CoverID)
		book.CoverImageURL = &cover
	}
	return book
}
