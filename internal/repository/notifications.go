package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationLog is the shared dedup store for outbound notifications.
// Keys live until their expiry and are then free to be claimed again.
type NotificationLog struct {
	db *pgxpool.Pool
}

// NewNotificationLog creates a new NotificationLog.
func NewNotificationLog(db *pgxpool.Pool) *NotificationLog {
	return &NotificationLog{db: db}
}

// Claim records key for ttl. It returns false when a live claim exists.
func (l *NotificationLog) Claim(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	ct, err := l.db.Exec(ctx, `
        INSERT INTO notification_log (dedup_key, expires_at, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (dedup_key) DO UPDATE
        SET expires_at = EXCLUDED.expires_at,
            created_at = EXCLUDED.created_at
        WHERE notification_log.expires_at <= EXCLUDED.created_at
    `, key, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("claim notification %q: %w", key, err)
	}
	return ct.RowsAffected() == 1, nil
}

// Purge deletes claims that expired before now.
func (l *NotificationLog) Purge(ctx context.Context, now time.Time) (int64, error) {
	ct, err := l.db.Exec(ctx, `DELETE FROM notification_log WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge notification log: %w", err)
	}
	return ct.RowsAffected(), nil
}
