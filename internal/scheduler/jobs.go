package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tickerhub/internal/domain"
)

// Cron schedules for the gateway's jobs (six-field, with seconds).
const (
	CacheWarmSchedule = "0 */5 * * * *" // every 5 minutes
	BackupSchedule    = "0 0 3 * * *"   // nightly at 03:00
)

const warmTimeout = 45 * time.Second

// CoinWarmer pre-fills the crypto top-coins cache.
type CoinWarmer interface {
	TopCoins(ctx context.Context) ([]domain.PriceQuote, error)
}

// StockWarmer pre-fills the default stock set cache.
type StockWarmer interface {
	Top(ctx context.Context) ([]domain.StockAsset, error)
}

// CacheWarmJob refreshes the hottest read paths ahead of demand so cold
// caches never stampede the upstreams.
type CacheWarmJob struct {
	coins  CoinWarmer
	stocks StockWarmer
	log    zerolog.Logger
}

// NewCacheWarmJob creates the cache warm job.
func NewCacheWarmJob(coins CoinWarmer, stocks StockWarmer, log zerolog.Logger) *CacheWarmJob {
	return &CacheWarmJob{
		coins:  coins,
		stocks: stocks,
		log:    log.With().Str("job", "cache_warm").Logger(),
	}
}

// Name implements Job.
func (j *CacheWarmJob) Name() string { return "cache_warm" }

// Run warms both caches; partial failures are logged, not fatal, so one
// degraded upstream never blocks warming the other.
func (j *CacheWarmJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	var errs []error
	if j.coins != nil {
		if _, err := j.coins.TopCoins(ctx); err != nil {
			j.log.Warn().Err(err).Msg("Failed to warm top coins")
			errs = append(errs, err)
		}
	}
	if j.stocks != nil {
		if _, err := j.stocks.Top(ctx); err != nil {
			j.log.Warn().Err(err).Msg("Failed to warm default stocks")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Backuper creates and rotates database backups.
type Backuper interface {
	CreateAndUpload(ctx context.Context) error
	Rotate(ctx context.Context) (int, error)
}

const backupTimeout = 5 * time.Minute

// BackupJob ships the nightly watchlist backup and prunes old ones.
type BackupJob struct {
	backups Backuper
	log     zerolog.Logger
}

// NewBackupJob creates the nightly backup job.
func NewBackupJob(backups Backuper, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name implements Job.
func (j *BackupJob) Name() string { return "backup" }

// Run uploads a fresh backup, then rotates. Rotation failures are logged
// only: the upload already succeeded.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if err := j.backups.CreateAndUpload(ctx); err != nil {
		return err
	}
	if _, err := j.backups.Rotate(ctx); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
