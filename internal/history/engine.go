// Package history appends price snapshots and evaluates the wishlist
// notification rules against the most recent pair.
package history

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/catalog"
	"github.com/gameprice/scraper/internal/metrics"
	"github.com/gameprice/scraper/internal/publisher"
)

// defaultDropThreshold is the percentage drop that fires a price_drop
// notification.
const defaultDropThreshold = 10.0

// Config tunes the engine.
type Config struct {
	DropThresholdPercent float64
	Topic                string // publish topic for created notifications
}

// Engine implements record-and-notify. Notifications are single inserts with
// no dedup against earlier ones; duplicate suppression is the caller's
// policy.
type Engine struct {
	repo   catalog.Repository
	clock  catalog.Clock
	ids    catalog.IDGenerator
	pub    publisher.Publisher
	cfg    Config
	logger *zap.Logger
}

// New builds an Engine. The publisher may be nil when event fan-out is not
// configured.
func New(repo catalog.Repository, clock catalog.Clock, ids catalog.IDGenerator, pub publisher.Publisher, cfg Config, logger *zap.Logger) *Engine {
	if cfg.DropThresholdPercent <= 0 {
		cfg.DropThresholdPercent = defaultDropThreshold
	}
	return &Engine{
		repo:   repo,
		clock:  clock,
		ids:    ids,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
	}
}

// RecordAndNotify appends a snapshot per non-nil price, then evaluates the
// target and drop rules for the user's wishlist entry. Both rules may fire on
// the same refresh. Returns the number of notifications created.
func (e *Engine) RecordAndNotify(ctx context.Context, userID, gameID string, steamPrice, epicPrice *float64) (int, error) {
	now := e.clock.Now()
	if steamPrice != nil {
		err := e.repo.AppendPriceHistory(ctx, catalog.PriceHistoryEntry{
			GameID:     gameID,
			Store:      catalog.StoreSteam,
			Price:      *steamPrice,
			IsFree:     *steamPrice == 0,
			ObservedAt: now,
		})
		if err != nil {
			return 0, fmt.Errorf("append steam snapshot: %w", err)
		}
	}
	if epicPrice != nil {
		err := e.repo.AppendPriceHistory(ctx, catalog.PriceHistoryEntry{
			GameID:     gameID,
			Store:      catalog.StoreEpic,
			Price:      *epicPrice,
			IsFree:     *epicPrice == 0,
			ObservedAt: now,
		})
		if err != nil {
			return 0, fmt.Errorf("append epic snapshot: %w", err)
		}
	}

	entry, err := e.repo.GetWishlistEntry(ctx, userID, gameID)
	if errors.Is(err, catalog.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get wishlist entry: %w", err)
	}

	recent, err := e.repo.GetLastNHistory(ctx, gameID, 2)
	if err != nil {
		return 0, fmt.Errorf("get recent history: %w", err)
	}
	if len(recent) < 2 {
		return 0, nil
	}
	current := recent[0].Price
	previous := recent[1].Price

	created := 0
	if entry.TargetPrice != nil && current <= *entry.TargetPrice {
		msg := fmt.Sprintf("Price target reached! Now %.2f (target: %.2f)", current, *entry.TargetPrice)
		if err := e.create(ctx, userID, gameID, catalog.NotificationTargetReached, msg); err != nil {
			return created, err
		}
		created++
	}

	if previous > 0 {
		dropPercent := (previous - current) / previous * 100
		if dropPercent >= e.cfg.DropThresholdPercent {
			msg := fmt.Sprintf("Price dropped %.1f%%! Now %.2f (was %.2f)", dropPercent, current, previous)
			if err := e.create(ctx, userID, gameID, catalog.NotificationPriceDrop, msg); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func (e *Engine) create(ctx context.Context, userID, gameID string, kind catalog.NotificationKind, message string) error {
	id, err := e.ids.NewID()
	if err != nil {
		return fmt.Errorf("allocate notification id: %w", err)
	}
	n := catalog.Notification{
		ID:        id,
		UserID:    userID,
		GameID:    gameID,
		Kind:      kind,
		Message:   message,
		CreatedAt: e.clock.Now(),
	}
	if err := e.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(kind)).Inc()

	if e.pub != nil {
		if _, err := e.pub.Publish(ctx, e.cfg.Topic, n); err != nil {
			// Delivery fan-out is best effort; the row is already durable.
			e.logger.Warn("publish notification event failed",
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
