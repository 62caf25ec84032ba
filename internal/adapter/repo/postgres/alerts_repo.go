package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// AlertRepo persists price alerts using a minimal pgx pool.
type AlertRepo struct{ Pool PgxPool }

// NewAlertRepo constructs an AlertRepo with the given pool.
func NewAlertRepo(p PgxPool) *AlertRepo { return &AlertRepo{Pool: p} }

const alertCols = `id, user_id, ticker, condition, target_price, channels, is_active, triggered_at, created_at, updated_at`

func scanAlert(row pgx.Row) (domain.PriceAlert, error) {
	var a domain.PriceAlert
	err := row.Scan(&a.ID, &a.UserID, &a.Ticker, &a.Condition, &a.TargetPrice, &a.Channels, &a.IsActive, &a.TriggeredAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Create inserts a new alert and returns its id.
func (r *AlertRepo) Create(ctx domain.Context, a domain.PriceAlert) (string, error) {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.Create")
	defer span.End()
	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO price_alerts (id, user_id, ticker, condition, target_price, channels, is_active, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,true,$7,$8)`
	_, err := r.Pool.Exec(ctx, q, id, a.UserID, a.Ticker, a.Condition, a.TargetPrice, a.Channels, now, now)
	if err != nil {
		return "", fmt.Errorf("op=alert.create: %w", err)
	}
	return id, nil
}

// Get loads an alert by id.
func (r *AlertRepo) Get(ctx domain.Context, id string) (domain.PriceAlert, error) {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.Get")
	defer span.End()
	q := `SELECT ` + alertCols + ` FROM price_alerts WHERE id=$1`
	a, err := scanAlert(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PriceAlert{}, fmt.Errorf("op=alert.get: %w", domain.ErrNotFound)
		}
		return domain.PriceAlert{}, fmt.Errorf("op=alert.get: %w", err)
	}
	return a, nil
}

// ListByUser returns a user's alerts, optionally only active ones.
func (r *AlertRepo) ListByUser(ctx domain.Context, userID string, activeOnly bool) ([]domain.PriceAlert, error) {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.ListByUser")
	defer span.End()
	q := `SELECT ` + alertCols + ` FROM price_alerts WHERE user_id=$1`
	if activeOnly {
		q += ` AND is_active=true`
	}
	q += ` ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("op=alert.list_by_user: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ListActive returns active alerts, optionally restricted to tickers.
func (r *AlertRepo) ListActive(ctx domain.Context, tickers []string) ([]domain.PriceAlert, error) {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.ListActive")
	defer span.End()
	q := `SELECT ` + alertCols + ` FROM price_alerts WHERE is_active=true`
	args := []any{}
	if len(tickers) > 0 {
		q += ` AND ticker = ANY($1)`
		args = append(args, tickers)
	}
	q += ` ORDER BY created_at`
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=alert.list_active: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]domain.PriceAlert, error) {
	var out []domain.PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("op=alert.scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Update persists mutable alert fields.
func (r *AlertRepo) Update(ctx domain.Context, a domain.PriceAlert) error {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.Update")
	defer span.End()
	q := `UPDATE price_alerts SET ticker=$2, condition=$3, target_price=$4, channels=$5, is_active=$6, updated_at=$7 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, a.ID, a.Ticker, a.Condition, a.TargetPrice, a.Channels, a.IsActive, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=alert.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=alert.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Trigger atomically deactivates an active alert and stamps triggered_at. The
// is_active guard makes it a compare-and-swap: a racing evaluator gets
// RowsAffected 0 and reports false.
func (r *AlertRepo) Trigger(ctx domain.Context, id string, at time.Time) (bool, error) {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.Trigger")
	defer span.End()
	q := `UPDATE price_alerts SET is_active=false, triggered_at=$2, updated_at=$2 WHERE id=$1 AND is_active=true`
	tag, err := r.Pool.Exec(ctx, q, id, at.UTC())
	if err != nil {
		return false, fmt.Errorf("op=alert.trigger: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes an alert scoped by its owner.
func (r *AlertRepo) Delete(ctx domain.Context, userID, id string) error {
	tracer := otel.Tracer("repo.alerts")
	ctx, span := tracer.Start(ctx, "alerts.Delete")
	defer span.End()
	q := `DELETE FROM price_alerts WHERE id=$1 AND user_id=$2`
	tag, err := r.Pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("op=alert.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=alert.delete: %w", domain.ErrNotFound)
	}
	return nil
}
