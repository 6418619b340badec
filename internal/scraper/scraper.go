// Package scraper acquires raw storefront listings. Every scraper owns a
// two-state extraction strategy: a rendering-capable primary path and a
// lightweight fallback. The downgrade is sticky; once the primary path fails
// the instance stays on the fallback for the rest of its lifetime.
package scraper

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/metrics"
)

// resultCap bounds the listings returned by a single search.
const resultCap = 10

// Scraper exposes the per-storefront acquisition operations. Both operations
// degrade internally: primary faults trigger the fallback, fallback faults
// yield empty results. Errors are returned only for caller-side cancellation.
type Scraper interface {
	Store() catalog.Store
	Search(ctx context.Context, query string) ([]catalog.RawListing, error)
	Details(ctx context.Context, nativeID string) (catalog.RawListing, error)
}

// Renderer drives the primary path: a JavaScript-capable fetch that returns
// the rendered DOM. Implementations must release their browsing session on
// every exit path.
type Renderer interface {
	Render(ctx context.Context, url string, opts RenderOptions) (string, error)
}

// RenderOptions shape one rendered fetch.
type RenderOptions struct {
	// WaitSelector is the required element; if it does not appear within
	// SelectorTimeout the fetch counts as an extraction failure.
	WaitSelector    string
	SelectorTimeout time.Duration
	// ScrollPasses triggers lazy-loaded content; bounded by the renderer.
	ScrollPasses int
}

// Getter is the fallback path: a plain HTTP GET.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// searchSelectors is the declarative selector-to-field mapping for a search
// results page. Mappings are data so storefront markup churn stays out of the
// extraction code.
type searchSelectors struct {
	Wait     string
	Row      string
	Title    string
	Price    string
	Discount string
	Image    string
}

// detailSelectors maps a product detail page.
type detailSelectors struct {
	Wait        string
	Title       string
	Description string
	Image       string
	Price       string
	Discount    string
}

// strategy is the sticky primary/fallback switch shared by both scrapers.
type strategy struct {
	store    catalog.Store
	degraded atomic.Bool
	logger   *zap.Logger
}

func newStrategy(store catalog.Store, logger *zap.Logger) *strategy {
	return &strategy{store: store, logger: logger}
}

// usePrimary reports whether the primary path is still trusted.
func (s *strategy) usePrimary() bool {
	return !s.degraded.Load()
}

// downgrade swallows the primary fault and switches the instance to the
// fallback path permanently.
func (s *strategy) downgrade(op string, err error) {
	if s.degraded.CompareAndSwap(false, true) {
		metrics.ScraperFallbacks.WithLabelValues(string(s.store)).Inc()
		s.logger.Warn("primary extraction failed, downgrading to fallback",
			zap.String("op", op),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("primary extraction failed while already degraded",
		zap.String("op", op),
		zap.Error(err),
	)
}

// wait applies the per-store rate limit before an outbound operation.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// capListings truncates to the per-search result bound, preserving
// extraction order.
func capListings(listings []catalog.RawListing) []catalog.RawListing {
	if len(listings) > resultCap {
		return listings[:resultCap]
	}
	return listings
}
