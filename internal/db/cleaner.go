package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// StartSoftDeleteCleaner purges soft-deleted credentials whose last update is
// older than retention, every interval, until ctx is done.
func StartSoftDeleteCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := PurgeDeleted(ctx, db, time.Now().Add(-retention), log); err != nil {
					log.Error("failed to clean soft-deleted credentials", zap.Error(err))
				}
			}
		}
	}()
}

// PurgeDeleted removes soft-deleted credentials updated before cutoff.
func PurgeDeleted(ctx context.Context, db *sql.DB, cutoff time.Time, log *zap.Logger) (int64, error) {
	res, err := db.ExecContext(ctx, `
        DELETE FROM credentials
         WHERE deleted = true
           AND updated_at < $1
    `, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		log.Info("cleaned soft-deleted credentials", zap.Int64("removed", rows))
	}
	return rows, nil
}
