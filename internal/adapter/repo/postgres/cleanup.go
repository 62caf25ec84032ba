package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CleanupService enforces data retention on high-churn tables: read
// notifications and finished workflow executions.
type CleanupService struct {
	Pool          *pgxpool.Pool
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool *pgxpool.Pool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData removes rows older than the retention period.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	notifTag, err := tx.Exec(ctx,
		`DELETE FROM notifications WHERE is_read=true AND created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup.notifications: %w", err)
	}
	execTag, err := tx.Exec(ctx,
		`DELETE FROM workflow_executions WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=cleanup.executions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup.commit: %w", err)
	}
	slog.Info("retention cleanup completed",
		slog.Int64("notifications_deleted", notifTag.RowsAffected()),
		slog.Int64("executions_deleted", execTag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return nil
}

// Run executes cleanup on the given interval until ctx is cancelled.
func (s *CleanupService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("retention cleanup failed", slog.Any("error", err))
			}
		}
	}
}
