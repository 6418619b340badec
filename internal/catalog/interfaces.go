package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Insight is an AI-generated text blob persisted for cross-device sync.
// Rows carry an expiry so stale advice ages out.
type Insight struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Repository is the durable-store contract. Implementations must treat
// CreateGame as safe under concurrent identical-title creation: the
// normalized title is unique, the first writer wins, and later writers
// receive the existing row.
type Repository interface {
	FindGameByNormalizedTitle(ctx context.Context, normalized string) (CanonicalGame, error)
	GetGameByID(ctx context.Context, id string) (CanonicalGame, error)
	CreateGame(ctx context.Context, game CanonicalGame) (CanonicalGame, error)
	UpdateGameFields(ctx context.Context, id string, fields GameFields) error

	AppendPriceHistory(ctx context.Context, entry PriceHistoryEntry) error
	GetLastNHistory(ctx context.Context, gameID string, n int) ([]PriceHistoryEntry, error)

	GetWishlistEntry(ctx context.Context, userID, gameID string) (WishlistEntry, error)
	CreateNotification(ctx context.Context, n Notification) error

	LogUserSearch(ctx context.Context, userID, query string) error
	SaveInsight(ctx context.Context, insight Insight) error

	Close()
}
