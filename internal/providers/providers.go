// Package providers contains the adapters wrapping each external
// book-metadata source behind the bookmeta.Provider interface.
//
// Every adapter follows the same failure policy: provider-local
// failures (network errors, timeouts, non-2xx statuses, malformed
// payloads, missing API keys) are logged and converted to "no result"
// so one provider can never fail the whole aggregation. Context
// cancellation is the only error that propagates.
package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tkorpela/bookdex/internal/bookmeta"
	bookdexerrors "github.com/tkorpela/bookdex/internal/errors"
)

const defaultTimeout = 10 * time.Second

// Options configures a provider at construction. Zero values fall back
// to the provider's defaults.
type Options struct {
	// BaseURL overrides the provider's endpoint, mainly for tests.
	BaseURL string
	// APIKey authenticates where the provider requires it.
	APIKey string
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	// Rate is the sustained request rate per second.
	Rate float64
}

func (o Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return defaultTimeout
}

func (o Options) rate() float64 {
	if o.Rate > 0 {
		return o.Rate
	}
	return 1.0
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// noResult implements the adapter failure boundary: cancellation
// propagates, anything else is logged with the provider name and query
// and becomes "no result".
func noResult(ctx context.Context, provider, query string, err error) (*bookmeta.Book, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logProviderFailure("provider lookup failed", provider, query, err)
	return nil, nil
}

// noResults is the list-returning variant for text searches.
func noResults(ctx context.Context, provider, query string, err error) ([]*bookmeta.Book, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logProviderFailure("provider search failed", provider, query, err)
	return nil, nil
}

func logProviderFailure(msg, provider, query string, err error) {
	var rateLimited *bookdexerrors.RateLimitError
	if errors.As(err, &rateLimited) {
		slog.Warn("provider rate limited, backing off until next run", "provider", provider, "query", query)
		return
	}
	slog.Warn(msg, "provider", provider, "query", query, "error", err)
}
