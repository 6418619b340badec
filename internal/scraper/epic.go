package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/metrics"
)

// Epic storefront selector mappings. The storefront is a React app, so the
// primary path leans on data-testid hooks with looser class fallbacks.
var (
	epicSearch = searchSelectors{
		Wait:     `[data-testid="search-results"]`,
		Row:      `[data-testid="search-results"] [data-testid*="product-card"]`,
		Title:    `[data-testid="product-card-title"], h3, [class*="title"]`,
		Price:    `[data-testid="product-card-price"], [class*="price"]`,
		Discount: `[data-testid="product-card-discount"]`,
		Image:    "img",
	}
	epicDetail = detailSelectors{
		Wait:        `[data-testid="product-title"]`,
		Title:       `[data-testid="product-title"], h1`,
		Description: `[data-testid="product-description"], [class*="description"]`,
		Image:       `[data-testid="product-image"] img`,
		Price:       `[data-testid="purchase-price"], [class*="price"]`,
	}
)

var epicSlugPattern = regexp.MustCompile(`/p/([^/?]+)`)

// EpicConfig parameterizes the Epic scraper.
type EpicConfig struct {
	BaseURL         string // storefront, default https://store.epicgames.com
	Locale          string // path locale segment, default en-US
	SelectorTimeout time.Duration
	ScrollPasses    int // lazy-load scroll iterations on the search page
	QPS             float64
}

// EpicScraper acquires Epic Games Store listings. Epic publishes no stable
// JSON search API, so the fallback re-parses the static browse markup and is
// strictly best effort.
type EpicScraper struct {
	cfg      EpicConfig
	renderer Renderer
	getter   Getter
	state    *strategy
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewEpic builds an EpicScraper. A nil renderer starts the instance on the
// fallback path.
func NewEpic(cfg EpicConfig, renderer Renderer, getter Getter, logger *zap.Logger) *EpicScraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://store.epicgames.com"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en-US"
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = 15 * time.Second
	}
	if cfg.ScrollPasses <= 0 {
		cfg.ScrollPasses = 3
	}
	s := &EpicScraper{
		cfg:      cfg,
		renderer: renderer,
		getter:   getter,
		state:    newStrategy(catalog.StoreEpic, logger),
		logger:   logger,
	}
	if cfg.QPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	if renderer == nil {
		s.state.degraded.Store(true)
	}
	return s
}

// Store identifies the storefront.
func (s *EpicScraper) Store() catalog.Store {
	return catalog.StoreEpic
}

// Search returns up to the capped number of listings for the query.
func (s *EpicScraper) Search(ctx context.Context, query string) ([]catalog.RawListing, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return nil, fmt.Errorf("epic rate limit: %w", err)
	}
	if s.state.usePrimary() {
		metrics.ScraperRequests.WithLabelValues("epic", "primary").Inc()
		listings, err := s.searchPrimary(ctx, query)
		if err == nil {
			metrics.ListingsExtracted.WithLabelValues("epic").Add(float64(len(listings)))
			return listings, nil
		}
		s.state.downgrade("search", err)
	}
	metrics.ScraperRequests.WithLabelValues("epic", "fallback").Inc()
	listings, err := s.searchFallback(ctx, query)
	if err != nil {
		s.logger.Warn("epic fallback search failed", zap.String("query", query), zap.Error(err))
		return nil, nil
	}
	metrics.ListingsExtracted.WithLabelValues("epic").Add(float64(len(listings)))
	return listings, nil
}

// Details fetches one listing by product slug.
func (s *EpicScraper) Details(ctx context.Context, slug string) (catalog.RawListing, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return catalog.RawListing{}, fmt.Errorf("epic rate limit: %w", err)
	}
	if s.state.usePrimary() {
		metrics.ScraperRequests.WithLabelValues("epic", "primary").Inc()
		listing, err := s.detailsPrimary(ctx, slug)
		if err == nil {
			return listing, nil
		}
		s.state.downgrade("details", err)
	}
	metrics.ScraperRequests.WithLabelValues("epic", "fallback").Inc()
	body, err := s.getter.Get(ctx, s.productURL(slug))
	if err != nil {
		s.logger.Warn("epic fallback details failed", zap.String("slug", slug), zap.Error(err))
		return catalog.RawListing{}, nil
	}
	listing, err := parseEpicDetail(string(body))
	if err != nil {
		s.logger.Warn("epic fallback details parse failed", zap.String("slug", slug), zap.Error(err))
		return catalog.RawListing{}, nil
	}
	listing.NativeID = slug
	listing.URL = s.productURL(slug)
	return listing, nil
}

func (s *EpicScraper) browseURL(query string) string {
	return fmt.Sprintf("%s/%s/browse?q=%s&sortBy=relevancy&sortDir=DESC&count=40",
		s.cfg.BaseURL, s.cfg.Locale, url.QueryEscape(query))
}

func (s *EpicScraper) productURL(slug string) string {
	return fmt.Sprintf("%s/%s/p/%s", s.cfg.BaseURL, s.cfg.Locale, url.PathEscape(slug))
}

func (s *EpicScraper) searchPrimary(ctx context.Context, query string) ([]catalog.RawListing, error) {
	html, err := s.renderer.Render(ctx, s.browseURL(query), RenderOptions{
		WaitSelector:    epicSearch.Wait,
		SelectorTimeout: s.cfg.SelectorTimeout,
		ScrollPasses:    s.cfg.ScrollPasses,
	})
	if err != nil {
		return nil, fmt.Errorf("render epic browse: %w", err)
	}
	return parseEpicSearch(html)
}

// searchFallback fetches the browse page without rendering. Epic serves a
// partial server-side shell; whatever cards are present get extracted, and a
// fully scripted page simply yields nothing.
func (s *EpicScraper) searchFallback(ctx context.Context, query string) ([]catalog.RawListing, error) {
	body, err := s.getter.Get(ctx, s.browseURL(query))
	if err != nil {
		return nil, fmt.Errorf("fetch epic browse: %w", err)
	}
	return parseEpicSearch(string(body))
}

func parseEpicSearch(html string) ([]catalog.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse epic browse html: %w", err)
	}

	var listings []catalog.RawListing
	doc.Find(epicSearch.Row).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := strings.TrimSpace(card.Find(epicSearch.Title).First().Text())
		if title == "" {
			return true
		}
		priceText := strings.TrimSpace(card.Find(epicSearch.Price).First().Text())
		if priceText == "" {
			priceText = "Free"
		}
		href := card.Find("a").First().AttrOr("href", "")
		listings = append(listings, catalog.RawListing{
			Title:           title,
			NativeID:        epicSlug(href),
			URL:             href,
			ImageURL:        card.Find(epicSearch.Image).First().AttrOr("src", ""),
			PriceText:       priceText,
			DiscountPercent: parseDiscount(card.Find(epicSearch.Discount).First().Text()),
			IsFree:          epicFreeText(priceText),
			Store:           catalog.StoreEpic,
		})
		return len(listings) < resultCap
	})
	return listings, nil
}

func (s *EpicScraper) detailsPrimary(ctx context.Context, slug string) (catalog.RawListing, error) {
	html, err := s.renderer.Render(ctx, s.productURL(slug), RenderOptions{
		WaitSelector:    epicDetail.Wait,
		SelectorTimeout: s.cfg.SelectorTimeout,
	})
	if err != nil {
		return catalog.RawListing{}, fmt.Errorf("render epic product page: %w", err)
	}
	listing, err := parseEpicDetail(html)
	if err != nil {
		return catalog.RawListing{}, err
	}
	listing.NativeID = slug
	listing.URL = s.productURL(slug)
	return listing, nil
}

func parseEpicDetail(html string) (catalog.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return catalog.RawListing{}, fmt.Errorf("parse epic product html: %w", err)
	}
	priceText := strings.TrimSpace(doc.Find(epicDetail.Price).First().Text())
	if priceText == "" {
		priceText = "Free"
	}
	return catalog.RawListing{
		Title:       strings.TrimSpace(doc.Find(epicDetail.Title).First().Text()),
		Description: strings.TrimSpace(doc.Find(epicDetail.Description).First().Text()),
		ImageURL:    doc.Find(epicDetail.Image).First().AttrOr("src", ""),
		PriceText:   priceText,
		IsFree:      epicFreeText(priceText),
		Store:       catalog.StoreEpic,
	}, nil
}

func epicSlug(href string) string {
	if m := epicSlugPattern.FindStringSubmatch(href); len(m) == 2 {
		return m[1]
	}
	return ""
}

func epicFreeText(priceText string) bool {
	lowered := strings.ToLower(priceText)
	return lowered == "" || strings.Contains(lowered, "free") || strings.Contains(lowered, "gratis")
}
