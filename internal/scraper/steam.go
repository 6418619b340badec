package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/metrics"
	"github.com/gameprice/scraper/internal/price"
)

// Steam storefront selector mappings. Kept as data; when Valve reshuffles the
// markup only these change.
var (
	steamSearch = searchSelectors{
		Wait:     ".search_results",
		Row:      "a.search_result_row",
		Title:    ".title",
		Price:    ".discount_final_price, .search_price",
		Discount: ".discount_pct",
		Image:    "img",
	}
	steamDetail = detailSelectors{
		Wait:        ".apphub_AppName",
		Title:       ".apphub_AppName",
		Description: ".game_description_snippet",
		Image:       ".game_header_image_full",
		Price:       ".discount_final_price, .price, .game_purchase_price",
		Discount:    ".discount_pct",
	}
)

var steamAppIDPattern = regexp.MustCompile(`app/(\d+)`)

// SteamConfig parameterizes the Steam scraper.
type SteamConfig struct {
	BaseURL         string  // storefront, default https://store.steampowered.com
	APIBaseURL      string  // public JSON API host, default same
	CountryCode     string  // cc parameter for the JSON API
	SelectorTimeout time.Duration
	QPS             float64
}

// SteamScraper acquires Steam listings. The primary path renders the
// storefront; the fallback hits Steam's public storesearch and appdetails
// JSON endpoints.
type SteamScraper struct {
	cfg      SteamConfig
	renderer Renderer
	getter   Getter
	state    *strategy
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewSteam builds a SteamScraper. A nil renderer starts the instance on the
// fallback path.
func NewSteam(cfg SteamConfig, renderer Renderer, getter Getter, logger *zap.Logger) *SteamScraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://store.steampowered.com"
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = cfg.BaseURL
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "US"
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = 10 * time.Second
	}
	s := &SteamScraper{
		cfg:      cfg,
		renderer: renderer,
		getter:   getter,
		state:    newStrategy(catalog.StoreSteam, logger),
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
func (s *SteamScraper) Store() catalog.Store {
	return catalog.StoreSteam
}

// Search returns up to the capped number of listings for the query. Primary
// faults downgrade to the fallback; fallback faults degrade to an empty list.
func (s *SteamScraper) Search(ctx context.Context, query string) ([]catalog.RawListing, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return nil, fmt.Errorf("steam rate limit: %w", err)
	}
	if s.state.usePrimary() {
		metrics.ScraperRequests.WithLabelValues("steam", "primary").Inc()
		listings, err := s.searchPrimary(ctx, query)
		if err == nil {
			metrics.ListingsExtracted.WithLabelValues("steam").Add(float64(len(listings)))
			return listings, nil
		}
		s.state.downgrade("search", err)
	}
	metrics.ScraperRequests.WithLabelValues("steam", "fallback").Inc()
	listings, err := s.searchFallback(ctx, query)
	if err != nil {
		s.logger.Warn("steam fallback search failed", zap.String("query", query), zap.Error(err))
		return nil, nil
	}
	metrics.ListingsExtracted.WithLabelValues("steam").Add(float64(len(listings)))
	return listings, nil
}

// Details fetches one listing by app id. An empty listing means not found or
// fully degraded.
func (s *SteamScraper) Details(ctx context.Context, appID string) (catalog.RawListing, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return catalog.RawListing{}, fmt.Errorf("steam rate limit: %w", err)
	}
	if s.state.usePrimary() {
		metrics.ScraperRequests.WithLabelValues("steam", "primary").Inc()
		listing, err := s.detailsPrimary(ctx, appID)
		if err == nil {
			return listing, nil
		}
		s.state.downgrade("details", err)
	}
	metrics.ScraperRequests.WithLabelValues("steam", "fallback").Inc()
	listing, err := s.detailsFallback(ctx, appID)
	if err != nil {
		s.logger.Warn("steam fallback details failed", zap.String("app_id", appID), zap.Error(err))
		return catalog.RawListing{}, nil
	}
	return listing, nil
}

func (s *SteamScraper) searchPrimary(ctx context.Context, query string) ([]catalog.RawListing, error) {
	searchURL := fmt.Sprintf("%s/search/?term=%s", s.cfg.BaseURL, url.QueryEscape(query))
	html, err := s.renderer.Render(ctx, searchURL, RenderOptions{
		WaitSelector:    steamSearch.Wait,
		SelectorTimeout: s.cfg.SelectorTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("render steam search: %w", err)
	}
	return parseSteamSearch(html)
}

// parseSteamSearch extracts listings from a rendered search results page.
// DLC and software rows are skipped; extraction order is document order.
func parseSteamSearch(html string) ([]catalog.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse steam search html: %w", err)
	}

	var listings []catalog.RawListing
	doc.Find(steamSearch.Row).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if row.HasClass("search_result_dlc") || row.HasClass("search_result_software") {
			return true
		}
		title := strings.TrimSpace(row.Find(steamSearch.Title).First().Text())
		if title == "" {
			return true
		}
		href := row.AttrOr("href", "")
		priceText := strings.TrimSpace(row.Find(steamSearch.Price).First().Text())
		if priceText == "" {
			priceText = "Free"
		}
		listings = append(listings, catalog.RawListing{
			Title:           title,
			NativeID:        steamAppID(href),
			URL:             href,
			ImageURL:        row.Find(steamSearch.Image).First().AttrOr("src", ""),
			PriceText:       priceText,
			DiscountPercent: parseDiscount(row.Find(steamSearch.Discount).First().Text()),
			IsFree:          strings.Contains(strings.ToLower(priceText), "free"),
			Store:           catalog.StoreSteam,
		})
		return len(listings) < resultCap
	})
	return listings, nil
}

func (s *SteamScraper) detailsPrimary(ctx context.Context, appID string) (catalog.RawListing, error) {
	pageURL := fmt.Sprintf("%s/app/%s/", s.cfg.BaseURL, url.PathEscape(appID))
	html, err := s.renderer.Render(ctx, pageURL, RenderOptions{
		WaitSelector:    steamDetail.Wait,
		SelectorTimeout: s.cfg.SelectorTimeout,
	})
	if err != nil {
		return catalog.RawListing{}, fmt.Errorf("render steam app page: %w", err)
	}
	listing, err := parseSteamDetail(html)
	if err != nil {
		return catalog.RawListing{}, err
	}
	listing.NativeID = appID
	listing.URL = pageURL
	return listing, nil
}

func parseSteamDetail(html string) (catalog.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return catalog.RawListing{}, fmt.Errorf("parse steam app html: %w", err)
	}
	priceText := strings.TrimSpace(doc.Find(steamDetail.Price).First().Text())
	if priceText == "" {
		priceText = "Free"
	}
	return catalog.RawListing{
		Title:           strings.TrimSpace(doc.Find(steamDetail.Title).First().Text()),
		Description:     strings.TrimSpace(doc.Find(steamDetail.Description).First().Text()),
		ImageURL:        doc.Find(steamDetail.Image).First().AttrOr("src", ""),
		PriceText:       priceText,
		DiscountPercent: parseDiscount(doc.Find(steamDetail.Discount).First().Text()),
		IsFree:          strings.Contains(strings.ToLower(priceText), "free"),
		Store:           catalog.StoreSteam,
	}, nil
}

// storesearchResponse is Steam's public search API shape.
type storesearchResponse struct {
	Items []struct {
		ID    json.Number `json:"id"`
		Name  string      `json:"name"`
		Price *struct {
			Final int `json:"final"`
		} `json:"price"`
		TinyImage string `json:"tiny_image"`
	} `json:"items"`
}

func (s *SteamScraper) searchFallback(ctx context.Context, query string) ([]catalog.RawListing, error) {
	apiURL := fmt.Sprintf("%s/api/storesearch/?term=%s&l=english&cc=%s",
		s.cfg.APIBaseURL, url.QueryEscape(query), url.QueryEscape(s.cfg.CountryCode))
	body, err := s.getter.Get(ctx, apiURL)
	if err != nil {
		return nil, fmt.Errorf("fetch storesearch: %w", err)
	}
	var resp storesearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode storesearch: %w", err)
	}

	listings := make([]catalog.RawListing, 0, len(resp.Items))
	for _, item := range resp.Items {
		appID := item.ID.String()
		listing := catalog.RawListing{
			Title:     item.Name,
			NativeID:  appID,
			URL:       fmt.Sprintf("%s/app/%s/", s.cfg.BaseURL, appID),
			ImageURL:  item.TinyImage,
			PriceText: "Free",
			IsFree:    true,
			Store:     catalog.StoreSteam,
		}
		if item.Price != nil {
			listing.PriceText = fmt.Sprintf("%.2f", price.FromCents(item.Price.Final))
			listing.IsFree = item.Price.Final == 0
		}
		listings = append(listings, listing)
	}
	return capListings(listings), nil
}

// appdetailsResponse is Steam's appdetails API shape, keyed by app id.
type appdetailsResponse map[string]struct {
	Success bool `json:"success"`
	Data    struct {
		Name             string `json:"name"`
		ShortDescription string `json:"short_description"`
		HeaderImage      string `json:"header_image"`
		IsFree           bool   `json:"is_free"`
		PriceOverview    *struct {
			Final           int `json:"final"`
			DiscountPercent int `json:"discount_percent"`
		} `json:"price_overview"`
	} `json:"data"`
}

func (s *SteamScraper) detailsFallback(ctx context.Context, appID string) (catalog.RawListing, error) {
	apiURL := fmt.Sprintf("%s/api/appdetails?appids=%s&cc=%s",
		s.cfg.APIBaseURL, url.QueryEscape(appID), url.QueryEscape(s.cfg.CountryCode))
	body, err := s.getter.Get(ctx, apiURL)
	if err != nil {
		return catalog.RawListing{}, fmt.Errorf("fetch appdetails: %w", err)
	}
	var resp appdetailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return catalog.RawListing{}, fmt.Errorf("decode appdetails: %w", err)
	}
	entry, ok := resp[appID]
	if !ok || !entry.Success {
		return catalog.RawListing{}, nil
	}

	listing := catalog.RawListing{
		Title:       entry.Data.Name,
		NativeID:    appID,
		URL:         fmt.Sprintf("%s/app/%s/", s.cfg.BaseURL, appID),
		ImageURL:    entry.Data.HeaderImage,
		Description: entry.Data.ShortDescription,
		PriceText:   "Free",
		IsFree:      entry.Data.IsFree,
		Store:       catalog.StoreSteam,
	}
	if entry.Data.PriceOverview != nil {
		listing.PriceText = fmt.Sprintf("%.2f", price.FromCents(entry.Data.PriceOverview.Final))
		listing.DiscountPercent = entry.Data.PriceOverview.DiscountPercent
		listing.IsFree = entry.Data.PriceOverview.Final == 0
	}
	return listing, nil
}

func steamAppID(href string) string {
	if m := steamAppIDPattern.FindStringSubmatch(href); len(m) == 2 {
		return m[1]
	}
	return ""
}

// parseDiscount converts markup like "-60%" to a positive percentage.
func parseDiscount(text string) int {
	cleaned := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "-%"))
	if cleaned == "" {
		return 0
	}
	value, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	if value < 0 {
		return -value
	}
	return value
}
