// Package service orchestrates the acquisition engine: concurrent per-store
// search, reconciliation, wishlist refresh, and optional AI insights.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/history"
	"github.com/gameprice/scraper/internal/insight"
	"github.com/gameprice/scraper/internal/price"
	"github.com/gameprice/scraper/internal/scraper"
)

// insightTTL bounds how long a stored insight stays relevant.
const insightTTL = 7 * 24 * time.Hour

// Service wires the scrapers, merger, and history engine behind the API.
type Service struct {
	steam    scraper.Scraper
	epic     scraper.Scraper
	merger   *catalog.Merger
	history  *history.Engine
	repo     catalog.Repository
	insights insight.Generator
	clock    catalog.Clock
	logger   *zap.Logger
}

// New builds a Service.
func New(
	steam, epic scraper.Scraper,
	merger *catalog.Merger,
	hist *history.Engine,
	repo catalog.Repository,
	insights insight.Generator,
	clock catalog.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		steam:    steam,
		epic:     epic,
		merger:   merger,
		history:  hist,
		repo:     repo,
		insights: insights,
		clock:    clock,
		logger:   logger,
	}
}

// SearchResult is the response payload for one search.
type SearchResult struct {
	Entries       []catalog.Entry
	SearchSeconds float64
	AIEnabled     bool
}

// Search runs both store scrapers concurrently and reconciles their listings.
// A scraper failure is isolated: the sibling's results still come back, with
// an empty list substituted for the failed side.
func (s *Service) Search(ctx context.Context, query, userID string) (SearchResult, error) {
	start := s.clock.Now()

	var (
		wg           sync.WaitGroup
		steamResults []catalog.RawListing
		epicResults  []catalog.RawListing
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		steamResults = s.searchStore(ctx, s.steam, query)
	}()
	go func() {
		defer wg.Done()
		epicResults = s.searchStore(ctx, s.epic, query)
	}()
	wg.Wait()

	entries, err := s.merger.Merge(ctx, steamResults, epicResults)
	if err != nil && len(entries) == 0 {
		return SearchResult{}, fmt.Errorf("merge listings: %w", err)
	}

	if userID != "" && s.insights.Enabled() {
		s.attachInsights(ctx, userID, entries)
	}
	if userID != "" {
		s.logSearch(ctx, userID, query)
	}

	return SearchResult{
		Entries:       entries,
		SearchSeconds: s.clock.Now().Sub(start).Seconds(),
		AIEnabled:     s.insights.Enabled(),
	}, nil
}

// searchStore shields the sibling scraper from this store's faults, panics
// included.
func (s *Service) searchStore(ctx context.Context, sc scraper.Scraper, query string) []catalog.RawListing {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scraper panicked",
				zap.String("store", string(sc.Store())),
				zap.Any("panic", r),
			)
		}
	}()
	listings, err := sc.Search(ctx, query)
	if err != nil {
		s.logger.Warn("store search failed",
			zap.String("store", string(sc.Store())),
			zap.String("query", query),
			zap.Error(err),
		)
		return nil
	}
	return listings
}

func (s *Service) attachInsights(ctx context.Context, userID string, entries []catalog.Entry) {
	for i := range entries {
		req := insight.Request{
			UserID:    userID,
			GameTitle: entries[i].Game.Title,
			Kind:      "quick_tip",
		}
		if q, ok := entries[i].Prices[catalog.StoreSteam]; ok {
			req.SteamPrice = q.Price
		}
		if q, ok := entries[i].Prices[catalog.StoreEpic]; ok {
			req.EpicPrice = q.Price
		}
		text, err := s.insights.Generate(ctx, req)
		if err != nil {
			s.logger.Warn("insight generation failed",
				zap.String("game_id", entries[i].Game.ID),
				zap.Error(err),
			)
			continue
		}
		entries[i].Insight = text
	}
}

// logSearch records the query for later analysis without holding up the
// response.
func (s *Service) logSearch(ctx context.Context, userID, query string) {
	bg := context.WithoutCancel(ctx)
	go func() {
		logCtx, cancel := context.WithTimeout(bg, 5*time.Second)
		defer cancel()
		if err := s.repo.LogUserSearch(logCtx, userID, query); err != nil {
			s.logger.Warn("log user search failed", zap.Error(err))
		}
	}()
}

// RefreshOutcome reports what a wishlist refresh accomplished.
type RefreshOutcome struct {
	Refreshed     int `json:"refreshed_games"`
	Notifications int `json:"notifications_created"`
	Insights      int `json:"ai_insights_generated"`
}

// RefreshWishlist re-scrapes current prices for each game, appends history,
// and evaluates notification rules. A failure on one game never stops the
// rest of the batch.
func (s *Service) RefreshWishlist(ctx context.Context, userID string, gameIDs []string) (RefreshOutcome, error) {
	var out RefreshOutcome
	for _, gameID := range gameIDs {
		if err := s.refreshGame(ctx, userID, gameID, &out); err != nil {
			s.logger.Error("refresh game failed",
				zap.String("game_id", gameID),
				zap.Error(err),
			)
			continue
		}
		out.Refreshed++
	}
	return out, nil
}

func (s *Service) refreshGame(ctx context.Context, userID, gameID string, out *RefreshOutcome) error {
	game, err := s.repo.GetGameByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}

	var steamPrice, epicPrice *float64
	if game.SteamAppID != "" {
		steamPrice = s.currentPrice(ctx, s.steam, game.SteamAppID)
	}
	if game.EpicSlug != "" {
		epicPrice = s.currentPrice(ctx, s.epic, game.EpicSlug)
	}

	created, err := s.history.RecordAndNotify(ctx, userID, gameID, steamPrice, epicPrice)
	out.Notifications += created
	if err != nil {
		return fmt.Errorf("record and notify: %w", err)
	}

	if s.insights.Enabled() {
		s.saveRefreshInsight(ctx, userID, game, steamPrice, epicPrice, out)
	}
	return nil
}

// currentPrice re-scrapes one store's detail page and parses its price.
// Degraded or unparsable lookups yield nil, which skips that store's
// snapshot.
func (s *Service) currentPrice(ctx context.Context, sc scraper.Scraper, nativeID string) *float64 {
	listing, err := sc.Details(ctx, nativeID)
	if err != nil {
		s.logger.Warn("detail lookup failed",
			zap.String("store", string(sc.Store())),
			zap.String("native_id", nativeID),
			zap.Error(err),
		)
		return nil
	}
	if listing.Empty() {
		return nil
	}
	if value, ok := price.Parse(listing.PriceText, string(sc.Store())); ok {
		return &value
	}
	return nil
}

func (s *Service) saveRefreshInsight(ctx context.Context, userID string, game catalog.CanonicalGame, steamPrice, epicPrice *float64, out *RefreshOutcome) {
	newPrice := steamPrice
	if newPrice == nil {
		newPrice = epicPrice
	}
	text, err := s.insights.Generate(ctx, insight.Request{
		UserID:    userID,
		GameTitle: game.Title,
		NewPrice:  newPrice,
		Kind:      "price_change",
	})
	if err != nil || text == "" {
		if err != nil {
			s.logger.Warn("refresh insight failed", zap.String("game_id", game.ID), zap.Error(err))
		}
		return
	}
	err = s.repo.SaveInsight(ctx, catalog.Insight{
		UserID:    userID,
		Kind:      "price_change",
		Content:   text,
		ExpiresAt: s.clock.Now().Add(insightTTL),
	})
	if err != nil {
		s.logger.Warn("save insight failed", zap.String("game_id", game.ID), zap.Error(err))
		return
	}
	out.Insights++
}

// History returns up to limit snapshots for the game, most recent first.
func (s *Service) History(ctx context.Context, gameID string, limit int) ([]catalog.PriceHistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if _, err := s.repo.GetGameByID(ctx, gameID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("load game: %w", err)
	}
	entries, err := s.repo.GetLastNHistory(ctx, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}
