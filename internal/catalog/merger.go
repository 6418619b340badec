package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/price"
)

// Merger joins listings from both storefronts by normalized title and
// resolves each group against the canonical catalog.
type Merger struct {
	repo   Repository
	clock  Clock
	ids    IDGenerator
	logger *zap.Logger
}

// NewMerger builds a Merger.
func NewMerger(repo Repository, clock Clock, ids IDGenerator, logger *zap.Logger) *Merger {
	return &Merger{
		repo:   repo,
		clock:  clock,
		ids:    ids,
		logger: logger,
	}
}

// Merge reconciles the two listing sets into catalog entries with per-store
// quotes. A persistence fault while resolving one title skips that entry and
// keeps going; the first such fault is returned alongside whatever succeeded
// so the caller can decide whether a partial result is acceptable.
func (m *Merger) Merge(ctx context.Context, steam, epic []RawListing) ([]Entry, error) {
	steamByKey := keyListings(steam)
	epicByKey := keyListings(epic)

	keys := make([]string, 0, len(steamByKey)+len(epicByKey))
	seen := make(map[string]struct{}, len(steamByKey)+len(epicByKey))
	for _, l := range append(append([]RawListing(nil), steam...), epic...) {
		key := Normalize(l.Title)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	entries := make([]Entry, 0, len(keys))
	var firstErr error
	for _, key := range keys {
		steamListing, hasSteam := steamByKey[key]
		epicListing, hasEpic := epicByKey[key]

		game, err := m.resolveGame(ctx, key, steamListing, hasSteam, epicListing, hasEpic)
		if err != nil {
			m.logger.Error("resolve canonical game failed",
				zap.String("normalized_title", key),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		entry := Entry{Game: game, Prices: make(map[Store]PriceQuote, 2)}
		if hasSteam {
			entry.Prices[StoreSteam] = m.quote(steamListing)
		}
		if hasEpic {
			entry.Prices[StoreEpic] = m.quote(epicListing)
		}
		entries = append(entries, entry)
	}
	return entries, firstErr
}

// keyListings indexes listings by normalized title; the last listing wins on
// duplicate keys within a store.
func keyListings(listings []RawListing) map[string]RawListing {
	byKey := make(map[string]RawListing, len(listings))
	for _, l := range listings {
		if key := Normalize(l.Title); key != "" {
			byKey[key] = l
		}
	}
	return byKey
}

// resolveGame looks the key up in the catalog and creates or enriches the
// row. Identity fields are immutable; everything else fills empty slots only.
func (m *Merger) resolveGame(ctx context.Context, key string, steam RawListing, hasSteam bool, epic RawListing, hasEpic bool) (CanonicalGame, error) {
	primary := steam
	if !hasSteam {
		primary = epic
	}

	existing, err := m.repo.FindGameByNormalizedTitle(ctx, key)
	switch {
	case err == nil:
		fields := GameFields{
			Description: primary.Description,
			ImageURL:    primary.ImageURL,
		}
		if hasSteam {
			fields.SteamAppID = steam.NativeID
		}
		if hasEpic {
			fields.EpicSlug = epic.NativeID
		}
		if fields.IsZero() {
			return existing, nil
		}
		if err := m.repo.UpdateGameFields(ctx, existing.ID, fields); err != nil {
			return CanonicalGame{}, fmt.Errorf("enrich game %s: %w", existing.ID, err)
		}
		return m.repo.GetGameByID(ctx, existing.ID)
	case errors.Is(err, ErrNotFound):
		id, err := m.ids.NewID()
		if err != nil {
			return CanonicalGame{}, fmt.Errorf("allocate game id: %w", err)
		}
		game := CanonicalGame{
			ID:              id,
			Title:           primary.Title,
			NormalizedTitle: key,
			Description:     primary.Description,
			ImageURL:        primary.ImageURL,
		}
		if hasSteam {
			game.SteamAppID = steam.NativeID
		}
		if hasEpic {
			game.EpicSlug = epic.NativeID
		}
		created, err := m.repo.CreateGame(ctx, game)
		if err != nil {
			return CanonicalGame{}, fmt.Errorf("create game: %w", err)
		}
		return created, nil
	default:
		return CanonicalGame{}, fmt.Errorf("find game: %w", err)
	}
}

// quote shapes the per-store payload straight from the listing's price
// fields. An unparsable price text yields a nil price, not a zero.
func (m *Merger) quote(l RawListing) PriceQuote {
	q := PriceQuote{
		Store:           l.Store,
		DiscountPercent: l.DiscountPercent,
		IsFree:          l.IsFree,
		URL:             l.URL,
		ObservedAt:      m.clock.Now(),
	}
	if value, ok := price.Parse(l.PriceText, string(l.Store)); ok {
		q.Price = &value
		if value == 0 {
			q.IsFree = true
		}
	}
	return q
}
