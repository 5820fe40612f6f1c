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
	"github.com/tkorpela/bookdex/internal/ratelimit"
)

const (
	wikidataSPARQLURL  = "https://query.wikidata.org/sparql"
	wikidataCommonsURL = "https://commons.wikimedia.org"
)

// Wikidata resolves ISBNs through the public SPARQL endpoint. When the
// matched item carries a Commons image reference, a second hop against
// the Commons API resolves it to a direct URL; that hop failing leaves
// the primary result intact.
//
// Wikidata has no usable free-text book search, so the provider is
// ISBN-only.
type Wikidata struct {
	sparqlURL   string
	commonsURL  string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

var _ bookmeta.Provider = (*Wikidata)(nil)

// NewWikidata creates the Wikidata provider.
func NewWikidata(opts Options) *Wikidata {
	sparqlURL := opts.BaseURL
	commonsURL := wikidataCommonsURL
	if sparqlURL == "" {
		sparqlURL = wikidataSPARQLURL
	} else {
		commonsURL = opts.BaseURL
	}
	return &Wikidata{
		sparqlURL:   sparqlURL,
		commonsURL:  commonsURL,
		httpClient:  newHTTPClient(opts.timeout()),
		rateLimiter: ratelimit.New(bookmeta.ProviderWikidata, opts.rate()),
	}
}

func (w *Wikidata) Name() string {
	return bookmeta.ProviderWikidata
}

func (w *Wikidata) Capabilities() bookmeta.Capability {
	return bookmeta.CapISBNLookup
}

// Ping runs a trivial SPARQL query.
func (w *Wikidata) Ping(ctx context.Context) error {
	reqURL := fmt.Sprintf("%s?query=%s&format=json", w.sparqlURL, url.QueryEscape("SELECT ?x WHERE { BIND(1 AS ?x) }"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wikidata ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikidata returned status %d", resp.StatusCode)
	}
	return nil
}

// SearchByISBN looks the ISBN up by its ISBN-13 (P212) or ISBN-10
// (P957) statement. Wikidata stores both hyphenated, so the query strips
// hyphens from the stored value before comparing.
func (w *Wikidata) SearchByISBN(ctx context.Context, isbn string) (*bookmeta.Book, error) {
	isbn = bookmeta.NormalizeISBN(isbn)
	if isbn == "" {
		return nil, nil
	}

	cached, _, err := cache.GetOrFetchWithTTL("wikidata_cache", isbn, func() (*cachedBook, error) {
		return w.fetchByISBN(ctx, isbn)
	}, cache.SelectNegativeCacheTTL(func(r *cachedBook) bool {
		return r.NotFound
	}))
	if err != nil {
		return noResult(ctx, w.Name(), isbn, err)
	}
	if cached.NotFound {
		return nil, nil
	}
	return cached.Book, nil
}

// SearchByText is not supported; Wikidata is ISBN-only.
func (w *Wikidata) SearchByText(ctx context.Context, query string) ([]*bookmeta.Book, error) {
	return nil, nil
}

// sparqlResponse matches the SPARQL JSON results format.
type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

type commonsImageInfoResponse struct {
	Query struct {
		Pages map[string]struct {
			ImageInfo []struct {
				URL string `json:"url"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

func (w *Wikidata) fetchByISBN(ctx context.Context, isbn string) (*cachedBook, error) {
	if err := w.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT ?item ?itemLabel ?authorLabel ?publisherLabel ?published ?image WHERE {
  { ?item wdt:P212 ?isbn13 . FILTER(REPLACE(?isbn13, "-", "") = %[1]q) }
  UNION
  { ?item wdt:P957 ?isbn10 . FILTER(REPLACE(?isbn10, "-", "") = %[1]q) }
  OPTIONAL { ?item wdt:P50 ?author }
  OPTIONAL { ?item wdt:P123 ?publisher }
  OPTIONAL { ?item wdt:P577 ?published }
  OPTIONAL { ?item wdt:P18 ?image }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en" }
} LIMIT 10`, isbn)

	reqURL := fmt.Sprintf("%s?query=%s&format=json", w.sparqlURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SPARQL request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SPARQL endpoint returned status %d", resp.StatusCode)
	}

	var result sparqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding SPARQL response: %w", err)
	}

	book := w.mapBindings(ctx, result, isbn)
	if book == nil {
		return &cachedBook{NotFound: true}, nil
	}
	return &cachedBook{Book: book}, nil
}

// mapBindings folds the result rows into one book. Rows repeat the item
// per author, so authors accumulate across rows.
func (w *Wikidata) mapBindings(ctx context.Context, result sparqlResponse, isbn string) *bookmeta.Book {
	bindings := result.Results.Bindings
	if len(bindings) == 0 {
		return nil
	}

	first := bindings[0]
	title := first["itemLabel"].Value
	if title == "" {
		return nil
	}

	book := &bookmeta.Book{
		Title:      title,
		ExternalID: entityIDFromURI(first["item"].Value),
	}
	normalized := isbn
	book.ISBN = &normalized

	seen := make(map[string]bool)
	for _, row := range bindings {
		if author := row["authorLabel"].Value; author != "" && !seen[author] {
			seen[author] = true
			book.Authors = append(book.Authors, author)
		}
	}
	if publisher := first["publisherLabel"].Value; publisher != "" {
		book.Publisher = &publisher
	}
	book.PublishYear = bookmeta.ExtractYear(first["published"].Value)

	if image := first["image"].Value; image != "" {
		if resolved := w.resolveCommonsImage(ctx, image); resolved != "" {
			book.CoverImageURL = &resolved
		}
	}

	return book
}

// resolveCommonsImage performs the second hop: asking the Commons API
// for the direct file URL behind a P18 image statement. Falls back to
// the statement value itself when the hop fails, since P18 values from
// SPARQL are already fetchable Special:FilePath URLs.
func (w *Wikidata) resolveCommonsImage(ctx context.Context, imageURI string) string {
	fileName := commonsFileName(imageURI)
	if fileName == "" {
		return imageURI
	}

	if err := w.rateLimiter.Wait(ctx); err != nil {
		return imageURI
	}

	reqURL := fmt.Sprintf("%s/w/api.php?action=query&titles=File:%s&prop=imageinfo&iiprop=url&format=json",
		w.commonsURL, url.QueryEscape(fileName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return imageURI
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return imageURI
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return imageURI
	}

	var info commonsImageInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return imageURI
	}
	for _, page := range info.Query.Pages {
		if len(page.ImageInfo) > 0 && page.ImageInfo[0].URL != "" {
			return page.ImageInfo[0].URL
		}
	}
	return imageURI
}

// entityIDFromURI extracts "Q12345" from a Wikidata entity URI.
func entityIDFromURI(uri string) string {
	if idx := strings.LastIndex(uri, "/"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}

// commonsFileName extracts the file name from a Special:FilePath URL.
func commonsFileName(imageURI string) string {
	const marker = "Special:FilePath/"
	idx := strings.Index(imageURI, marker)
	if idx < 0 {
		return ""
	}
	name, err := url.QueryUnescape(imageURI[idx+len(marker):])
	if err != nil {
		return imageURI[idx+len(marker):]
	}
	return name
}
