package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// PortfolioRepo persists portfolios and their positions using a minimal pgx
// pool.
type PortfolioRepo struct{ Pool PgxPool }

// NewPortfolioRepo constructs a PortfolioRepo with the given pool.
func NewPortfolioRepo(p PgxPool) *PortfolioRepo { return &PortfolioRepo{Pool: p} }

// GetOrCreateForUser returns the user's portfolio, creating it on first use.
// The unique index on user_id makes the create race-safe.
func (r *PortfolioRepo) GetOrCreateForUser(ctx domain.Context, userID string) (domain.Portfolio, error) {
	tracer := otel.Tracer("repo.portfolios")
	ctx, span := tracer.Start(ctx, "portfolios.GetOrCreateForUser")
	defer span.End()
	q := `INSERT INTO portfolios (id, user_id, created_at) VALUES ($1,$2,$3)
	      ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
	      RETURNING id, user_id, created_at`
	var p domain.Portfolio
	err := r.Pool.QueryRow(ctx, q, uuid.New().String(), userID, time.Now().UTC()).
		Scan(&p.ID, &p.UserID, &p.CreatedAt)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("op=portfolio.get_or_create: %w", err)
	}
	return p, nil
}

// ListPositions returns the positions of a portfolio, newest first.
func (r *PortfolioRepo) ListPositions(ctx domain.Context, portfolioID string) ([]domain.StockPosition, error) {
	tracer := otel.Tracer("repo.portfolios")
	ctx, span := tracer.Start(ctx, "portfolios.ListPositions")
	defer span.End()
	q := `SELECT id, portfolio_id, ticker, quantity, purchase_price, purchase_date, created_at, updated_at
	      FROM stock_positions WHERE portfolio_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("op=position.list: %w", err)
	}
	defer rows.Close()
	var out []domain.StockPosition
	for rows.Next() {
		var p domain.StockPosition
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.Ticker, &p.Quantity, &p.PurchasePrice, &p.PurchaseDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=position.list scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddPosition inserts a position and returns its id.
func (r *PortfolioRepo) AddPosition(ctx domain.Context, p domain.StockPosition) (string, error) {
	tracer := otel.Tracer("repo.portfolios")
	ctx, span := tracer.Start(ctx, "portfolios.AddPosition")
	defer span.End()
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO stock_positions (id, portfolio_id, ticker, quantity, purchase_price, purchase_date, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.Pool.Exec(ctx, q, id, p.PortfolioID, p.Ticker, p.Quantity, p.PurchasePrice, p.PurchaseDate, now, now)
	if err != nil {
		return "", fmt.Errorf("op=position.add: %w", err)
	}
	return id, nil
}

// UpdatePosition persists changes to a position scoped by its portfolio.
func (r *PortfolioRepo) UpdatePosition(ctx domain.Context, p domain.StockPosition) error {
	tracer := otel.Tracer("repo.portfolios")
	ctx, span := tracer.Start(ctx, "portfolios.UpdatePosition")
	defer span.End()
	q := `UPDATE stock_positions SET ticker=$3, quantity=$4, purchase_price=$5, purchase_date=$6, updated_at=$7
	      WHERE id=$1 AND portfolio_id=$2`
	tag, err := r.Pool.Exec(ctx, q, p.ID, p.PortfolioID, p.Ticker, p.Quantity, p.PurchasePrice, p.PurchaseDate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=position.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=position.update: %w", domain.ErrNotFound)
	}
	return nil
}

// RemovePosition deletes a position scoped by its portfolio.
func (r *PortfolioRepo) RemovePosition(ctx domain.Context, portfolioID, positionID string) error {
	tracer := otel.Tracer("repo.portfolios")
	ctx, span := tracer.Start(ctx, "portfolios.RemovePosition")
	defer span.End()
	q := `DELETE FROM stock_positions WHERE id=$1 AND portfolio_id=$2`
	tag, err := r.Pool.Exec(ctx, q, positionID, portfolioID)
	if err != nil {
		return fmt.Errorf("op=position.remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=position.remove: %w", domain.ErrNotFound)
	}
	return nil
}
