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

const inventaireBaseURL = "https://inventaire.io"

// Inventaire adapts the inventaire.io entities API, a crowd-sourced
// book database federated with Wikidata. Its strength is cover images
// for editions the bigger providers miss.
type Inventaire struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

var _ bookmeta.Provider = (*Inventaire)(nil)

// NewInventaire creates the Inventaire provider.
func NewInventaire(opts Options) *Inventaire {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = inventaireBaseURL
	}
	return &Inventaire{
		baseURL:     baseURL,
		httpClient:  newHTTPClient(opts.timeout()),
		rateLimiter: ratelimit.New(bookmeta.ProviderInventaire, opts.rate()),
	}
}

func (i *Inventaire) Name() string {
	return bookmeta.ProviderInventaire
}

func (i *Inventaire) Capabilities() bookmeta.Capability {
	return bookmeta.CapISBNLookup | bookmeta.CapTextSearch
}

// Ping checks that the API root answers.
func (i *Inventaire) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/api/entities?action=by-uris&uris=wd:Q571", nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inventaire ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inventaire returned status %d", resp.StatusCode)
	}
	return nil
}

// SearchByISBN resolves an edition entity by its isbn: URI.
func (i *Inventaire) SearchByISBN(ctx context.Context, isbn string) (*bookmeta.Book, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, nil
	}

	cached, _, err := cache.GetOrFetchWithTTL("inventaire_cache", isbn, func() (*cachedBook, error) {
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

// SearchByText queries the works search endpoint.
func (i *Inventaire) SearchByText(ctx context.Context, query string) ([]*bookmeta.Book, error) {
	if err := i.rateLimiter.Wait(ctx); err != nil {
		return noResults(ctx, i.Name(), query, err)
	}

	reqURL := fmt.Sprintf("%s/api/search?types=works&search=%s&limit=10", i.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return noResults(ctx, i.Name(), query, err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return noResults(ctx, i.Name(), query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return noResults(ctx, i.Name(), query, fmt.Errorf("search returned status %d", resp.StatusCode))
	}

	var result inventaireSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return noResults(ctx, i.Name(), query, fmt.Errorf("decoding search response: %w", err))
	}

	books := make([]*bookmeta.Book, 0, len(result.Results))
	for _, entry := range result.Results {
		if entry.Label == "" {
			continue
		}
		book := &bookmeta.Book{
			Title:      entry.Label,
			ExternalID: entry.URI,
		}
		if entry.Image != "" {
			cover := i.imageURL(entry.Image)
			book.CoverImageURL = &cover
		}
		books = append(books, book)
	}
	return books, nil
}

// inventaireEntitiesResponse matches the by-uris entities response.
type inventaireEntitiesResponse struct {
	Entities map[string]inventaireEntity `json:"entities"`
}

type inventaireEntity struct {
	URI    string            `json:"uri"`
	Labels map[string]string `json:"labels"`
	Claims map[string][]any  `json:"claims"`
	Image  struct {
		URL string `json:"url"`
	} `json:"image"`
}

type inventaireSearchResponse struct {
	Results []struct {
		URI   string `json:"uri"`
		Label string `json:"label"`
		Image string `json:"image"`
	} `json:"results"`
}

func (i *Inventaire) fetchByISBN(ctx context.Context, isbn string) (*cachedBook, error) {
	if err := i.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/api/entities?action=by-uris&uris=isbn:%s", i.baseURL, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Inventaire answers 404 for unknown ISBN URIs.
	if resp.StatusCode == http.StatusNotFound {
		return &cachedBook{NotFound: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result inventaireEntitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	entity, ok := result.Entities["isbn:"+isbn]
	if !ok {
		return &cachedBook{NotFound: true}, nil
	}

	book := i.mapEntity(entity, isbn)
	if book == nil {
		return &cachedBook{NotFound: true}, nil
	}
	return &cachedBook{Book: book}, nil
}

// mapEntity canonicalizes an edition entity. The title lives in the
// P1476 claim, falling back to the English label.
func (i *Inventaire) mapEntity(entity inventaireEntity, isbn string) *bookmeta.Book {
	title := claimString(entity.Claims, "wdt:P1476")
	if title == "" {
		title = entity.Labels["en"]
	}
	if title == "" {
		return nil
	}

	book := &bookmeta.Book{
		Title:      title,
		ExternalID: entity.URI,
	}
	normalized := isbn
	book.ISBN = &normalized

	book.PublishYear = bookmeta.ExtractYear(claimString(entity.Claims, "wdt:P577"))
	if entity.Image.URL != "" {
		cover := i.imageURL(entity.Image.URL)
		book.CoverImageURL = &cover
	}

	return book
}

// imageURL turns a relative image path into an absolute URL.
func (i *Inventaire) imageURL(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return i.baseURL + path
	}
	return path
}

// claimString returns the first string value of a claim.
func claimString(claims map[string][]any, property string) string {
	for _, v := range claims[property] {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}
