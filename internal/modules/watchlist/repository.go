// Package watchlist stores the user's saved assets in the gateway's SQLite
// database. Entries reference assets by type and id only; quotes are always
// fetched live.
package watchlist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Entry is one saved asset.
type Entry struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "stock" | "crypto"
	AssetID   string `json:"assetId"`
	CreatedAt int64  `json:"createdAt"` // epoch seconds
}

// Repository handles watchlist database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new watchlist repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "watchlist").Logger(),
	}
}

// List returns all entries, newest first.
func (r *Repository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, type, asset_id, created_at FROM watchlist ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Type, &e.AssetID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Insert stores a new entry. Returns sql errors unchanged so the service can
// map constraint violations.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO watchlist (id, type, asset_id, created_at) VALUES (?, ?, ?, ?)",
		e.ID, e.Type, e.AssetID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert watchlist entry: %w", err)
	}
	return nil
}

// Find returns the entry matching (type, assetId), or nil.
func (r *Repository) Find(ctx context.Context, assetType, assetID string) (*Entry, error) {
	var e Entry
	err := r.db.QueryRowContext(ctx,
		"SELECT id, type, asset_id, created_at FROM watchlist WHERE type = ? AND asset_id = ?",
		assetType, assetID).Scan(&e.ID, &e.Type, &e.AssetID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find watchlist entry: %w", err)
	}
	return &e, nil
}

// Delete removes an entry by id, reporting whether it existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM watchlist WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete watchlist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of saved entries.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM watchlist").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count watchlist: %w", err)
	}
	return n, nil
}
