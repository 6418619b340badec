// Package postgres provides the Postgres-backed Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gameprice/scraper/internal/catalog"
)

// DB is the subset of pgxpool.Pool the repository uses. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Repository implements catalog.Repository on Postgres.
type Repository struct {
	db DB
}

// New connects a pgx pool and pings it.
func New(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Repository{db: pool}, nil
}

// NewWithDB wraps an existing connection; used by tests with pgxmock.
func NewWithDB(db DB) *Repository {
	return &Repository{db: db}
}

// Close releases the underlying pool.
func (r *Repository) Close() {
	r.db.Close()
}

const gameColumns = "id, title, normalized_title, description, image_url, steam_app_id, epic_slug"

// FindGameByNormalizedTitle returns the game for a matching key.
func (r *Repository) FindGameByNormalizedTitle(ctx context.Context, normalized string) (catalog.CanonicalGame, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE normalized_title = $1`
	return r.scanGame(r.db.QueryRow(ctx, query, normalized))
}

// GetGameByID returns the game with the given id.
func (r *Repository) GetGameByID(ctx context.Context, id string) (catalog.CanonicalGame, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`
	return r.scanGame(r.db.QueryRow(ctx, query, id))
}

// CreateGame inserts the game. The unique index on normalized_title resolves
// the race between concurrent identical-title creations: the first writer
// wins and everyone reads back the surviving row.
func (r *Repository) CreateGame(ctx context.Context, game catalog.CanonicalGame) (catalog.CanonicalGame, error) {
	query := `
		INSERT INTO games (id, title, normalized_title, description, image_url, steam_app_id, epic_slug)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (normalized_title) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		game.ID,
		game.Title,
		game.NormalizedTitle,
		game.Description,
		game.ImageURL,
		game.SteamAppID,
		game.EpicSlug,
	)
	if err != nil {
		return catalog.CanonicalGame{}, fmt.Errorf("insert game: %w", err)
	}
	created, err := r.FindGameByNormalizedTitle(ctx, game.NormalizedTitle)
	if err != nil {
		return catalog.CanonicalGame{}, fmt.Errorf("read back game: %w", err)
	}
	return created, nil
}

// UpdateGameFields enriches empty columns only; populated columns keep their
// stored value.
func (r *Repository) UpdateGameFields(ctx context.Context, id string, fields catalog.GameFields) error {
	query := `
		UPDATE games SET
			steam_app_id = COALESCE(NULLIF(steam_app_id, ''), NULLIF($2, ''), ''),
			epic_slug    = COALESCE(NULLIF(epic_slug, ''), NULLIF($3, ''), ''),
			description  = COALESCE(NULLIF(description, ''), NULLIF($4, ''), ''),
			image_url    = COALESCE(NULLIF(image_url, ''), NULLIF($5, ''), '')
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, fields.SteamAppID, fields.EpicSlug, fields.Description, fields.ImageURL)
	if err != nil {
		return fmt.Errorf("update game fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// AppendPriceHistory inserts one snapshot.
func (r *Repository) AppendPriceHistory(ctx context.Context, entry catalog.PriceHistoryEntry) error {
	query := `
		INSERT INTO price_history (game_id, store, price, is_free, observed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, entry.GameID, entry.Store, entry.Price, entry.IsFree, entry.ObservedAt)
	if err != nil {
		return fmt.Errorf("append price history: %w", err)
	}
	return nil
}

// GetLastNHistory returns up to n snapshots across stores, most recent first.
func (r *Repository) GetLastNHistory(ctx context.Context, gameID string, n int) ([]catalog.PriceHistoryEntry, error) {
	query := `
		SELECT game_id, store, price, is_free, observed_at
		FROM price_history
		WHERE game_id = $1
		ORDER BY observed_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, gameID, n)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var entries []catalog.PriceHistoryEntry
	for rows.Next() {
		var e catalog.PriceHistoryEntry
		if err := rows.Scan(&e.GameID, &e.Store, &e.Price, &e.IsFree, &e.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return entries, nil
}

// GetWishlistEntry returns the wishlist row for (user, game).
func (r *Repository) GetWishlistEntry(ctx context.Context, userID, gameID string) (catalog.WishlistEntry, error) {
	query := `SELECT user_id, game_id, target_price FROM wishlist WHERE user_id = $1 AND game_id = $2`
	var entry catalog.WishlistEntry
	err := r.db.QueryRow(ctx, query, userID, gameID).Scan(&entry.UserID, &entry.GameID, &entry.TargetPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.WishlistEntry{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.WishlistEntry{}, fmt.Errorf("query wishlist entry: %w", err)
	}
	return entry, nil
}

// CreateNotification inserts one notification row.
func (r *Repository) CreateNotification(ctx context.Context, n catalog.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, game_id, kind, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, n.ID, n.UserID, n.GameID, n.Kind, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// LogUserSearch records a search for later analysis.
func (r *Repository) LogUserSearch(ctx context.Context, userID, query string) error {
	stmt := `INSERT INTO user_searches (user_id, query) VALUES ($1, $2)`
	if _, err := r.db.Exec(ctx, stmt, userID, query); err != nil {
		return fmt.Errorf("insert user search: %w", err)
	}
	return nil
}

// SaveInsight stores an AI insight with its expiry.
func (r *Repository) SaveInsight(ctx context.Context, insight catalog.Insight) error {
	query := `
		INSERT INTO ai_insights (user_id, kind, content, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, insight.UserID, insight.Kind, insight.Content, insight.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert ai insight: %w", err)
	}
	return nil
}

func (r *Repository) scanGame(row pgx.Row) (catalog.CanonicalGame, error) {
	var g catalog.CanonicalGame
	err := row.Scan(&g.ID, &g.Title, &g.NormalizedTitle, &g.Description, &g.ImageURL, &g.SteamAppID, &g.EpicSlug)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.CanonicalGame{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.CanonicalGame{}, fmt.Errorf("scan game: %w", err)
	}
	return g, nil
}
