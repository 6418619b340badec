// Package catalog defines the canonical game catalog types shared across
// subsystems, the title normalizer used as the cross-store matching key, and
// the matcher/merger that reconciles per-store listings into catalog entries.
package catalog

import "time"

// Store identifies a storefront.
type Store string

// Supported storefronts.
const (
	StoreSteam Store = "steam"
	StoreEpic  Store = "epic"
)

// RawListing is one store's search or detail result before reconciliation.
// It is ephemeral and never persisted directly.
type RawListing struct {
	Title           string `json:"title"`
	NativeID        string `json:"native_id,omitempty"`
	URL             string `json:"url,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	Description     string `json:"description,omitempty"`
	PriceText       string `json:"price_text"`
	DiscountPercent int    `json:"discount_percent"`
	IsFree          bool   `json:"is_free"`
	Store           Store  `json:"store"`
}

// Empty reports whether the listing carries no data, which is how scrapers
// signal a degraded "not found" detail lookup.
func (l RawListing) Empty() bool {
	return l.Title == ""
}

// CanonicalGame is the merged, store-agnostic catalog identity. One row per
// distinct game; identity fields (ID, NormalizedTitle) are immutable after
// creation, the rest are enriched but never overwritten.
type CanonicalGame struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	NormalizedTitle string `json:"normalized_title"`
	Description     string `json:"description,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	SteamAppID      string `json:"steam_app_id,omitempty"`
	EpicSlug        string `json:"epic_slug,omitempty"`
}

// GameFields is an enrichment patch for an existing CanonicalGame. Empty
// fields are left untouched; populated fields are written only when the
// stored value is still empty.
type GameFields struct {
	SteamAppID  string
	EpicSlug    string
	Description string
	ImageURL    string
}

// IsZero reports whether the patch carries nothing to write.
func (f GameFields) IsZero() bool {
	return f == GameFields{}
}

// PriceQuote is a single store's price for a game, attached to a catalog
// entry for one response. Price is nil when the store's price text was
// unparsable.
type PriceQuote struct {
	Store           Store     `json:"store"`
	Price           *float64  `json:"price"`
	DiscountPercent int       `json:"discount_percent"`
	IsFree          bool      `json:"is_free"`
	URL             string    `json:"url,omitempty"`
	ObservedAt      time.Time `json:"observed_at"`
}

// PriceHistoryEntry is one price snapshot. Append-only; never mutated or
// deleted by this engine.
type PriceHistoryEntry struct {
	GameID     string    `json:"game_id"`
	Store      Store     `json:"store"`
	Price      float64   `json:"price"`
	IsFree     bool      `json:"is_free"`
	ObservedAt time.Time `json:"observed_at"`
}

// WishlistEntry is owned by an external collaborator; this engine only reads
// it for target-price comparison.
type WishlistEntry struct {
	UserID      string   `json:"user_id"`
	GameID      string   `json:"game_id"`
	TargetPrice *float64 `json:"target_price,omitempty"`
}

// NotificationKind classifies a notification.
type NotificationKind string

// Notification kinds created by the history engine.
const (
	NotificationTargetReached NotificationKind = "target_reached"
	NotificationPriceDrop     NotificationKind = "price_drop"
)

// Notification is write-once, created when a wishlist rule fires.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	GameID    string           `json:"game_id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// Entry is the merge result shape consumed by the routing layer: one
// canonical game plus its per-store quotes. A store that produced no listing
// is simply absent from Prices.
type Entry struct {
	Game    CanonicalGame        `json:"game"`
	Prices  map[Store]PriceQuote `json:"prices"`
	Insight string               `json:"ai_insight,omitempty"`
}

// Clock returns the current time. Abstracted for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces catalog row IDs.
type IDGenerator interface {
	NewID() (string, error)
}
