package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	"github.com/tkorpela/bookdex/internal/ratelimit"
)

// Vision adapts an Azure-style image analysis endpoint to identify
// books from cover photos. It reads the caption and OCR lines from the
// analyze response and builds a title/author guess; the aggregation
// layer upgrades that guess through a text search.
//
// Unlike the other providers the endpoint is not public, so a missing
// endpoint or key is a deployment mistake: construction fails fast
// instead of producing a provider that can never work.
type Vision struct {
	endpoint    string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *ratelimit.Limiter
}

var (
	_ bookmeta.Provider        = (*Vision)(nil)
	_ bookmeta.ImageIdentifier = (*Vision)(nil)
)

// NewVision creates the vision provider. Errors when the endpoint or
// key is not configured.
func NewVision(opts Options) (*Vision, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("vision provider requires an endpoint")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("vision provider requires an API key")
	}
	return &Vision{
		endpoint:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		httpClient:  newHTTPClient(opts.timeout()),
		rateLimiter: ratelimit.New(bookmeta.ProviderVision, opts.rate()),
	}, nil
}

func (v *Vision) Name() string {
	return bookmeta.ProviderVision
}

func (v *Vision) Capabilities() bookmeta.Capability {
	return bookmeta.CapImageIdent
}

// Ping checks that the endpoint rejects an empty body with something
// other than an auth failure.
func (v *Vision) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.analyzeURL(), bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("creating ping request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", v.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vision ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("vision API key rejected (status %d)", resp.StatusCode)
	}
	return nil
}

// SearchByISBN is not supported; the vision provider only identifies images.
func (v *Vision) SearchByISBN(ctx context.Context, isbn string) (*bookmeta.Book, error) {
	return nil, nil
}

// SearchByText is not supported; the vision provider only identifies images.
func (v *Vision) SearchByText(ctx context.Context, query string) ([]*bookmeta.Book, error) {
	return nil, nil
}

// IdentifyImage sends the cover photo to the analyze endpoint and
// derives a best-guess record from the read text.
func (v *Vision) IdentifyImage(ctx context.Context, image []byte) (*bookmeta.Book, error) {
	if len(image) == 0 {
		return nil, nil
	}

	if err := v.rateLimiter.Wait(ctx); err != nil {
		return noResult(ctx, v.Name(), "image", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.analyzeURL(), bytes.NewReader(image))
	if err != nil {
		return noResult(ctx, v.Name(), "image", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", v.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return noResult(ctx, v.Name(), "image", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return noResult(ctx, v.Name(), "image", fmt.Errorf("analyze returned status %d", resp.StatusCode))
	}

	var result visionAnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return noResult(ctx, v.Name(), "image", fmt.Errorf("decoding analyze response: %w", err))
	}

	return mapVisionResult(result), nil
}

func (v *Vision) analyzeURL() string {
	return v.endpoint + "/computervision/imageanalysis:analyze?api-version=2023-10-01&features=caption,read"
}

// visionAnalyzeResponse matches the image analysis response.
type visionAnalyzeResponse struct {
	CaptionResult struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"captionResult"`
	ReadResult struct {
		Blocks []struct {
			Lines []struct {
				Text string `json:"text"`
			} `json:"lines"`
		} `json:"blocks"`
	} `json:"readResult"`
}

// mapVisionResult builds a title guess from the OCR lines. Cover text
// reads top to bottom with the title usually in the first lines; the
// first line becomes the title and any remaining line that looks like a
// name becomes an author candidate. Returns nil when no text was read.
func mapVisionResult(result visionAnalyzeResponse) *bookmeta.Book {
	var lines []string
	for _, block := range result.ReadResult.Blocks {
		for _, line := range block.Lines {
			text := strings.TrimSpace(line.Text)
			if text != "" {
				lines = append(lines, text)
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}

	book := &bookmeta.Book{Title: lines[0]}
	for _, line := range lines[1:] {
		if looksLikeAuthor(line) {
			book.Authors = append(book.Authors, line)
		}
	}
	return book
}

// looksLikeAuthor accepts short mostly-alphabetic lines of two to four
// words, a cheap filter for author names among cover blurbs.
func looksLikeAuthor(line string) bool {
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, word := range words {
		for _, r := range word {
			if !strings.ContainsRune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ.-'", r) {
				return false
			}
		}
	}
	return true
}
