package utils

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/discussion/models"
)

// PruneReadNotifications deletes notifications that were read before cutoff.
// Unread notifications are never removed.
func PruneReadNotifications(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// StartNotificationPruner periodically removes notifications read more than
// olderThan ago, until ctx is cancelled.
func StartNotificationPruner(ctx context.Context, db *gorm.DB, olderThan, interval time.Duration) {
	if olderThan <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := PruneReadNotifications(ctx, db, time.Now().Add(-olderThan))
				if err != nil {
					Sugar.Warnf("notification pruner: %v", err)
					continue
				}
				if n > 0 {
					Sugar.Infof("notification pruner removed %d read notifications", n)
				}
			}
		}
	}()
}
