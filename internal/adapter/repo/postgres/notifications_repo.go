package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// NotificationRepo persists notifications using a minimal pgx pool.
type NotificationRepo struct{ Pool PgxPool }

// NewNotificationRepo constructs a NotificationRepo with the given pool.
func NewNotificationRepo(p PgxPool) *NotificationRepo { return &NotificationRepo{Pool: p} }

// Create inserts a notification and returns its id.
func (r *NotificationRepo) Create(ctx domain.Context, n domain.Notification) (string, error) {
	tracer := otel.Tracer("repo.notifications")
	ctx, span := tracer.Start(ctx, "notifications.Create")
	defer span.End()
	id := n.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO notifications (id, user_id, type, title, message, payload, is_read, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,false,$7)`
	_, err := r.Pool.Exec(ctx, q, id, n.UserID, n.Type, n.Title, n.Message, n.Payload, created)
	if err != nil {
		return "", fmt.Errorf("op=notification.create: %w", err)
	}
	return id, nil
}

// List returns the newest notifications for a user.
func (r *NotificationRepo) List(ctx domain.Context, userID string, limit int, unreadOnly bool) ([]domain.Notification, error) {
	tracer := otel.Tracer("repo.notifications")
	ctx, span := tracer.Start(ctx, "notifications.List")
	defer span.End()
	q := `SELECT id, user_id, type, title, message, COALESCE(payload,'{}'), is_read, created_at FROM notifications WHERE user_id=$1`
	if unreadOnly {
		q += ` AND is_read=false`
	}
	q += ` ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=notification.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Payload, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=notification.list scan: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks one notification read, scoped by its owner.
func (r *NotificationRepo) MarkRead(ctx domain.Context, userID, id string) error {
	tracer := otel.Tracer("repo.notifications")
	ctx, span := tracer.Start(ctx, "notifications.MarkRead")
	defer span.End()
	q := `UPDATE notifications SET is_read=true WHERE id=$1 AND user_id=$2`
	tag, err := r.Pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("op=notification.mark_read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=notification.mark_read: %w", domain.ErrNotFound)
	}
	return nil
}

// CountSince counts a user's notifications of one type created after the
// cutoff. The anti-fatigue gate reads this before notifying.
func (r *NotificationRepo) CountSince(ctx domain.Context, userID, typ string, since time.Time) (int, error) {
	tracer := otel.Tracer("repo.notifications")
	ctx, span := tracer.Start(ctx, "notifications.CountSince")
	defer span.End()
	q := `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND type=$2 AND created_at >= $3`
	var count int
	if err := r.Pool.QueryRow(ctx, q, userID, typ, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("op=notification.count_since: %w", err)
	}
	return count, nil
}
