package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/history"
	"github.com/gameprice/scraper/internal/publisher"
	pubmemory "github.com/gameprice/scraper/internal/publisher/memory"
	"github.com/gameprice/scraper/internal/store/memory"
)

type tickingClock struct {
	now  time.Time
	step time.Duration
}

// Now advances on every call so consecutive snapshots order deterministically.
func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

type seqIDs struct{ next int }

func (g *seqIDs) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("note-%d", g.next), nil
}

func ptr(v float64) *float64 { return &v }

func newTestEngine(repo *memory.Repository, pub *pubmemory.Publisher, cfg history.Config) *history.Engine {
	clock := &tickingClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second}
	// A nil *pubmemory.Publisher must become a nil interface, not a typed nil,
	// so the engine's "publisher may be nil" guard sees it.
	var p publisher.Publisher
	if pub != nil {
		p = pub
	}
	return history.New(repo, clock, &seqIDs{}, p, cfg, zap.NewNop())
}

func TestRecordAndNotifyAppendsSnapshots(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	e := newTestEngine(repo, nil, history.Config{})

	created, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(19.99), ptr(0))
	require.NoError(t, err)
	assert.Zero(t, created, "no wishlist entry means no notifications")

	entries, err := repo.GetLastNHistory(context.Background(), "game-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].IsFree, "zero price records as free")
}

func TestRecordAndNotifySkipsNilPrices(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	e := newTestEngine(repo, nil, history.Config{})

	_, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(9.99), nil)
	require.NoError(t, err)

	entries, err := repo.GetLastNHistory(context.Background(), "game-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, catalog.StoreSteam, entries[0].Store)
}

func TestTargetRuleBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		target  float64
		current float64
		fires   bool
	}{
		{name: "below target", target: 20.00, current: 14.99, fires: true},
		{name: "exactly at target", target: 14.99, current: 14.99, fires: true},
		{name: "one cent above", target: 14.99, current: 15.00, fires: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := memory.New()
			repo.PutWishlistEntry(catalog.WishlistEntry{
				UserID: "user-1", GameID: "game-1", TargetPrice: ptr(tt.target),
			})
			e := newTestEngine(repo, nil, history.Config{DropThresholdPercent: 90})

			// First refresh seeds history; the second carries the price under test.
			_, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(tt.current), nil)
			require.NoError(t, err)
			created, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(tt.current), nil)
			require.NoError(t, err)

			if tt.fires {
				assert.Equal(t, 1, created)
				notes := repo.Notifications()
				require.NotEmpty(t, notes)
				assert.Equal(t, catalog.NotificationTargetReached, notes[len(notes)-1].Kind)
			} else {
				assert.Zero(t, created)
			}
		})
	}
}

func TestDropRuleBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous float64
		current  float64
		fires    bool
	}{
		{name: "exactly threshold", previous: 100.00, current: 90.00, fires: true},
		{name: "above threshold", previous: 100.00, current: 50.00, fires: true},
		{name: "just under threshold", previous: 100.00, current: 90.01, fires: false},
		{name: "price increase", previous: 50.00, current: 60.00, fires: false},
		{name: "previous free", previous: 0, current: 0, fires: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := memory.New()
			// Wishlist row without a target so only the drop rule applies.
			repo.PutWishlistEntry(catalog.WishlistEntry{UserID: "user-1", GameID: "game-1"})
			e := newTestEngine(repo, nil, history.Config{})

			_, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(tt.previous), nil)
			require.NoError(t, err)
			created, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(tt.current), nil)
			require.NoError(t, err)

			if tt.fires {
				assert.Equal(t, 1, created)
				notes := repo.Notifications()
				require.NotEmpty(t, notes)
				assert.Equal(t, catalog.NotificationPriceDrop, notes[len(notes)-1].Kind)
			} else {
				assert.Zero(t, created)
			}
		})
	}
}

func TestBothRulesFireOnOneRefresh(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	repo.PutWishlistEntry(catalog.WishlistEntry{
		UserID: "user-1", GameID: "game-1", TargetPrice: ptr(30.00),
	})
	pub := pubmemory.New()
	e := newTestEngine(repo, pub, history.Config{Topic: "price-events"})

	_, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(59.99), nil)
	require.NoError(t, err)
	created, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(29.99), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, created)
	require.Len(t, repo.Notifications(), 2)
	assert.Len(t, pub.Messages(), 2, "each notification publishes one event")
}

func TestSingleSnapshotNeverNotifies(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	repo.PutWishlistEntry(catalog.WishlistEntry{
		UserID: "user-1", GameID: "game-1", TargetPrice: ptr(100.00),
	})
	e := newTestEngine(repo, nil, history.Config{})

	created, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(5.00), nil)
	require.NoError(t, err)
	assert.Zero(t, created, "fewer than two snapshots means no comparison")
}

func TestNotificationMessageFormat(t *testing.T) {
	t.Parallel()

	repo := memory.New()
	repo.PutWishlistEntry(catalog.WishlistEntry{UserID: "user-1", GameID: "game-1"})
	e := newTestEngine(repo, nil, history.Config{})

	_, err := e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(40.00), nil)
	require.NoError(t, err)
	_, err = e.RecordAndNotify(context.Background(), "user-1", "game-1", ptr(20.00), nil)
	require.NoError(t, err)

	notes := repo.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Price dropped 50.0%! Now 20.00 (was 40.00)", notes[0].Message)
}
