package watchlist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Validation and state errors surfaced to the dispatcher.
var (
	ErrInvalidType  = errors.New("type must be \"stock\" or \"crypto\"")
	ErrEmptyAssetID = errors.New("assetId is required")
	ErrAlreadySaved = errors.New("asset already in watchlist")
	ErrNotFound     = errors.New("watchlist entry not found")
)

// Service provides watchlist operations.
type Service struct {
	repo *Repository
	now  func() time.Time
	log  zerolog.Logger
}

// NewService creates a new watchlist service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
		log:  log.With().Str("service", "watchlist").Logger(),
	}
}

// List returns all saved entries, newest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.repo.List(ctx)
}

// Add saves an asset. Stock ids are upper-cased, crypto ids lower-cased, to
// match each adapter's canonical form.
func (s *Service) Add(ctx context.Context, assetType, assetID string) (*Entry, error) {
	assetType = strings.ToLower(strings.TrimSpace(assetType))
	if assetType != "stock" && assetType != "crypto" {
		return nil, ErrInvalidType
	}

	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, ErrEmptyAssetID
	}
	if assetType == "stock" {
		assetID = strings.ToUpper(assetID)
	} else {
		assetID = strings.ToLower(assetID)
	}

	existing, err := s.repo.Find(ctx, assetType, assetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadySaved
	}

	entry := Entry{
		ID:        uuid.New().String(),
		Type:      assetType,
		AssetID:   assetID,
		CreatedAt: s.now().Unix(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info().Str("type", assetType).Str("asset", assetID).Msg("Watchlist entry added")
	return &entry, nil
}

// Remove deletes an entry by id.
func (s *Service) Remove(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	s.log.Info().Str("id", id).Msg("Watchlist entry removed")
	return nil
}
