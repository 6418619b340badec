package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/history"
	"github.com/gameprice/scraper/internal/insight"
	"github.com/gameprice/scraper/internal/service"
	"github.com/gameprice/scraper/internal/store/memory"
)

type stubScraper struct {
	store    catalog.Store
	listings []catalog.RawListing
	detail   catalog.RawListing
	err      error
}

func (s *stubScraper) Store() catalog.Store { return s.store }

func (s *stubScraper) Search(_ context.Context, _ string) ([]catalog.RawListing, error) {
	return s.listings, s.err
}

func (s *stubScraper) Details(_ context.Context, _ string) (catalog.RawListing, error) {
	return s.detail, s.err
}

type panickyScraper struct{ store catalog.Store }

func (s *panickyScraper) Store() catalog.Store { return s.store }
func (s *panickyScraper) Search(context.Context, string) ([]catalog.RawListing, error) {
	panic("selector drift")
}
func (s *panickyScraper) Details(context.Context, string) (catalog.RawListing, error) {
	panic("selector drift")
}

type stubInsights struct {
	text string
	err  error
}

func (g stubInsights) Enabled() bool { return true }
func (g stubInsights) Generate(context.Context, insight.Request) (string, error) {
	return g.text, g.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ next int }

func (g *seqIDs) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

func ptr(v float64) *float64 { return &v }

func newService(t *testing.T, repo *memory.Repository, steam, epic *stubScraper, gen insight.Generator) *service.Service {
	t.Helper()
	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	ids := &seqIDs{}
	logger := zap.NewNop()
	merger := catalog.NewMerger(repo, clock, ids, logger)
	engine := history.New(repo, clock, ids, nil, history.Config{}, logger)
	if gen == nil {
		gen = insight.Disabled{}
	}
	return service.New(steam, epic, merger, engine, repo, gen, clock, logger)
}

func TestSearchIsolatesStoreFailure(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	steam := &stubScraper{store: catalog.StoreSteam, err: errors.New("rate limited")}
	epic := &stubScraper{store: catalog.StoreEpic, listings: []catalog.RawListing{{
		Title: "Alan Wake 2", NativeID: "alan-wake-2", PriceText: "€49.99", Store: catalog.StoreEpic,
	}}}

	svc := newService(t, repo, steam, epic, nil)
	result, err := svc.Search(context.Background(), "alan wake", "")
	require.NoError(t, err, "one failed store must not fail the search")
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "Alan Wake 2", result.Entries[0].Game.Title)
}

func TestSearchSurvivesScraperPanic(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	epic := &stubScraper{store: catalog.StoreEpic, listings: []catalog.RawListing{{
		Title: "Celeste", NativeID: "celeste", PriceText: "19.99", Store: catalog.StoreEpic,
	}}}

	clock := fixedClock{now: time.Unix(1700000000, 0).UTC()}
	ids := &seqIDs{}
	logger := zap.NewNop()
	merger := catalog.NewMerger(repo, clock, ids, logger)
	engine := history.New(repo, clock, ids, nil, history.Config{}, logger)
	svc := service.New(&panickyScraper{store: catalog.StoreSteam}, epic, merger, engine, repo, insight.Disabled{}, clock, logger)

	result, err := svc.Search(context.Background(), "celeste", "")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
}

func TestSearchAttachesInsightsWhenEnabled(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	steam := &stubScraper{store: catalog.StoreSteam, listings: []catalog.RawListing{{
		Title: "Hades", NativeID: "1145360", PriceText: "24.99", Store: catalog.StoreSteam,
	}}}
	epic := &stubScraper{store: catalog.StoreEpic}

	svc := newService(t, repo, steam, epic, stubInsights{text: "Wait for a sale."})
	result, err := svc.Search(context.Background(), "hades", "user-1")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "Wait for a sale.", result.Entries[0].Insight)
	assert.True(t, result.AIEnabled)
}

func TestSearchSkipsInsightsWithoutUser(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	steam := &stubScraper{store: catalog.StoreSteam, listings: []catalog.RawListing{{
		Title: "Hades", NativeID: "1145360", PriceText: "24.99", Store: catalog.StoreSteam,
	}}}
	epic := &stubScraper{store: catalog.StoreEpic}

	svc := newService(t, repo, steam, epic, stubInsights{text: "Wait for a sale."})
	result, err := svc.Search(context.Background(), "hades", "")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Empty(t, result.Entries[0].Insight)
}

func TestSearchLogsUserQuery(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	steam := &stubScraper{store: catalog.StoreSteam}
	epic := &stubScraper{store: catalog.StoreEpic}

	svc := newService(t, repo, steam, epic, nil)
	_, err := svc.Search(context.Background(), "portal", "user-1")
	require.NoError(t, err)

	// The log write is fire and forget.
	require.Eventually(t, func() bool {
		logs := repo.Searches()
		return len(logs) == 1 && logs[0].Query == "portal" && logs[0].UserID == "user-1"
	}, time.Second, 10*time.Millisecond)
}

func TestRefreshWishlistContainsPerGameFailures(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	game, err := repo.CreateGame(context.Background(), catalog.CanonicalGame{
		ID:              "game-1",
		Title:           "Hollow Knight",
		NormalizedTitle: "hollow knight",
		SteamAppID:      "367520",
	})
	require.NoError(t, err)

	steam := &stubScraper{store: catalog.StoreSteam, detail: catalog.RawListing{
		Title: "Hollow Knight", NativeID: "367520", PriceText: "14.99", Store: catalog.StoreSteam,
	}}
	epic := &stubScraper{store: catalog.StoreEpic}

	svc := newService(t, repo, steam, epic, nil)
	outcome, err := svc.RefreshWishlist(context.Background(), "user-1", []string{"missing-game", game.ID})
	require.NoError(t, err, "per-game failures never fail the batch")

	assert.Equal(t, 1, outcome.Refreshed)
	entries, err := repo.GetLastNHistory(context.Background(), game.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 14.99, entries[0].Price)
}

func TestRefreshWishlistCountsNotifications(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	game, err := repo.CreateGame(context.Background(), catalog.CanonicalGame{
		ID:              "game-1",
		Title:           "Hollow Knight",
		NormalizedTitle: "hollow knight",
		SteamAppID:      "367520",
	})
	require.NoError(t, err)
	repo.PutWishlistEntry(catalog.WishlistEntry{
		UserID: "user-1", GameID: game.ID, TargetPrice: ptr(20.00),
	})

	steam := &stubScraper{store: catalog.StoreSteam, detail: catalog.RawListing{
		Title: "Hollow Knight", NativeID: "367520", PriceText: "14.99", Store: catalog.StoreSteam,
	}}
	epic := &stubScraper{store: catalog.StoreEpic}
	svc := newService(t, repo, steam, epic, nil)

	// First refresh seeds history, second has a pair to compare.
	_, err = svc.RefreshWishlist(context.Background(), "user-1", []string{game.ID})
	require.NoError(t, err)
	outcome, err := svc.RefreshWishlist(context.Background(), "user-1", []string{game.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Refreshed)
	assert.Equal(t, 1, outcome.Notifications, "target rule fires once history has a pair")
}

func TestRefreshWishlistSavesInsights(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	game, err := repo.CreateGame(context.Background(), catalog.CanonicalGame{
		ID:              "game-1",
		Title:           "Hollow Knight",
		NormalizedTitle: "hollow knight",
		SteamAppID:      "367520",
	})
	require.NoError(t, err)

	steam := &stubScraper{store: catalog.StoreSteam, detail: catalog.RawListing{
		Title: "Hollow Knight", NativeID: "367520", PriceText: "14.99", Store: catalog.StoreSteam,
	}}
	epic := &stubScraper{store: catalog.StoreEpic}
	svc := newService(t, repo, steam, epic, stubInsights{text: "Good price."})

	outcome, err := svc.RefreshWishlist(context.Background(), "user-1", []string{game.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Insights)

	insights := repo.Insights()
	require.Len(t, insights, 1)
	assert.Equal(t, "price_change", insights[0].Kind)
	assert.Equal(t, "Good price.", insights[0].Content)
	assert.False(t, insights[0].ExpiresAt.IsZero())
}

func TestHistoryUnknownGame(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	svc := newService(t, repo, &stubScraper{store: catalog.StoreSteam}, &stubScraper{store: catalog.StoreEpic}, nil)

	_, err := svc.History(context.Background(), "missing", 10)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestHistoryReturnsRecentEntries(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	game, err := repo.CreateGame(context.Background(), catalog.CanonicalGame{
		ID: "game-1", Title: "Celeste", NormalizedTitle: "celeste",
	})
	require.NoError(t, err)

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AppendPriceHistory(context.Background(), catalog.PriceHistoryEntry{
			GameID:     game.ID,
			Store:      catalog.StoreSteam,
			Price:      float64(10 + i),
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	svc := newService(t, repo, &stubScraper{store: catalog.StoreSteam}, &stubScraper{store: catalog.StoreEpic}, nil)
	entries, err := svc.History(context.Background(), game.ID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 12.0, entries[0].Price, "most recent first")
}
