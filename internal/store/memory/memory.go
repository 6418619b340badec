// Package memory contains an in-memory Repository used by tests and by the
// "memory" db provider.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gameprice/scraper/internal/catalog"
)

// Repository implements catalog.Repository with mutex-guarded maps.
type Repository struct {
	mu            sync.RWMutex
	games         map[string]catalog.CanonicalGame // by id
	byNormalized  map[string]string                // normalized title -> id
	history       map[string][]catalog.PriceHistoryEntry
	wishlist      map[string]catalog.WishlistEntry // userID + "/" + gameID
	notifications []catalog.Notification
	searches      []SearchLog
	insights      []catalog.Insight
}

// SearchLog records one logged user search.
type SearchLog struct {
	UserID string
	Query  string
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		games:        make(map[string]catalog.CanonicalGame),
		byNormalized: make(map[string]string),
		history:      make(map[string][]catalog.PriceHistoryEntry),
		wishlist:     make(map[string]catalog.WishlistEntry),
	}
}

// FindGameByNormalizedTitle looks up a game by its matching key.
func (r *Repository) FindGameByNormalizedTitle(_ context.Context, normalized string) (catalog.CanonicalGame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNormalized[normalized]
	if !ok {
		return catalog.CanonicalGame{}, catalog.ErrNotFound
	}
	return r.games[id], nil
}

// GetGameByID looks up a game by id.
func (r *Repository) GetGameByID(_ context.Context, id string) (catalog.CanonicalGame, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	game, ok := r.games[id]
	if !ok {
		return catalog.CanonicalGame{}, catalog.ErrNotFound
	}
	return game, nil
}

// CreateGame inserts the game unless its normalized title already exists, in
// which case the existing row is returned. First writer wins.
func (r *Repository) CreateGame(_ context.Context, game catalog.CanonicalGame) (catalog.CanonicalGame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byNormalized[game.NormalizedTitle]; ok {
		return r.games[existingID], nil
	}
	r.games[game.ID] = game
	r.byNormalized[game.NormalizedTitle] = game.ID
	return game, nil
}

// UpdateGameFields applies an enrich-only patch: a field is written only when
// the stored value is still empty.
func (r *Repository) UpdateGameFields(_ context.Context, id string, fields catalog.GameFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	game, ok := r.games[id]
	if !ok {
		return catalog.ErrNotFound
	}
	if game.SteamAppID == "" && fields.SteamAppID != "" {
		game.SteamAppID = fields.SteamAppID
	}
	if game.EpicSlug == "" && fields.EpicSlug != "" {
		game.EpicSlug = fields.EpicSlug
	}
	if game.Description == "" && fields.Description != "" {
		game.Description = fields.Description
	}
	if game.ImageURL == "" && fields.ImageURL != "" {
		game.ImageURL = fields.ImageURL
	}
	r.games[id] = game
	return nil
}

// AppendPriceHistory appends one snapshot.
func (r *Repository) AppendPriceHistory(_ context.Context, entry catalog.PriceHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[entry.GameID] = append(r.history[entry.GameID], entry)
	return nil
}

// GetLastNHistory returns up to n snapshots for the game across stores,
// most recent first.
func (r *Repository) GetLastNHistory(_ context.Context, gameID string, n int) ([]catalog.PriceHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := append([]catalog.PriceHistoryEntry(nil), r.history[gameID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ObservedAt.After(entries[j].ObservedAt)
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// GetWishlistEntry returns the wishlist row for (user, game).
func (r *Repository) GetWishlistEntry(_ context.Context, userID, gameID string) (catalog.WishlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.wishlist[userID+"/"+gameID]
	if !ok {
		return catalog.WishlistEntry{}, catalog.ErrNotFound
	}
	return entry, nil
}

// PutWishlistEntry seeds a wishlist row. Test helper; the wishlist itself is
// owned by an external collaborator.
func (r *Repository) PutWishlistEntry(entry catalog.WishlistEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wishlist[entry.UserID+"/"+entry.GameID] = entry
}

// CreateNotification records a notification.
func (r *Repository) CreateNotification(_ context.Context, n catalog.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

// Notifications returns a copy of all recorded notifications.
func (r *Repository) Notifications() []catalog.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]catalog.Notification(nil), r.notifications...)
}

// LogUserSearch records a search for later analysis.
func (r *Repository) LogUserSearch(_ context.Context, userID, query string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches = append(r.searches, SearchLog{UserID: userID, Query: query})
	return nil
}

// Searches returns a copy of all logged searches.
func (r *Repository) Searches() []SearchLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SearchLog(nil), r.searches...)
}

// SaveInsight records an AI insight.
func (r *Repository) SaveInsight(_ context.Context, insight catalog.Insight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insights = append(r.insights, insight)
	return nil
}

// Insights returns a copy of all recorded insights.
func (r *Repository) Insights() []catalog.Insight {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]catalog.Insight(nil), r.insights...)
}

// Close is a no-op for the in-memory repository.
func (r *Repository) Close() {}
