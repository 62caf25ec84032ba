package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// PortfolioService manages a user's single portfolio and its positions.
type PortfolioService struct {
	repo domain.PortfolioRepository
}

// NewPortfolioService wires the portfolio service.
func NewPortfolioService(repo domain.PortfolioRepository) *PortfolioService {
	return &PortfolioService{repo: repo}
}

// Get returns the user's portfolio with its positions, creating the portfolio
// on first use.
func (s *PortfolioService) Get(ctx context.Context, userID string) (domain.Portfolio, []domain.StockPosition, error) {
	p, err := s.repo.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return domain.Portfolio{}, nil, err
	}
	positions, err := s.repo.ListPositions(ctx, p.ID)
	if err != nil {
		return domain.Portfolio{}, nil, err
	}
	return p, positions, nil
}

func validatePosition(p *domain.StockPosition) error {
	t, err := domain.NormalizeTicker(p.Ticker)
	if err != nil {
		return err
	}
	p.Ticker = t
	if p.Quantity <= 0 {
		return fmt.Errorf("op=position.validate: quantity must be positive: %w", domain.ErrInvalidArgument)
	}
	if p.PurchasePrice <= 0 {
		return fmt.Errorf("op=position.validate: purchase price must be positive: %w", domain.ErrInvalidArgument)
	}
	if p.PurchaseDate.After(time.Now()) {
		return fmt.Errorf("op=position.validate: purchase date in the future: %w", domain.ErrInvalidArgument)
	}
	return nil
}

// AddPosition validates and stores a new position in the user's portfolio.
func (s *PortfolioService) AddPosition(ctx context.Context, userID string, p domain.StockPosition) (domain.StockPosition, error) {
	if err := validatePosition(&p); err != nil {
		return domain.StockPosition{}, err
	}
	pf, err := s.repo.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return domain.StockPosition{}, err
	}
	p.PortfolioID = pf.ID
	p.CreatedAt = time.Now().UTC()
	id, err := s.repo.AddPosition(ctx, p)
	if err != nil {
		return domain.StockPosition{}, err
	}
	p.ID = id
	return p, nil
}

// UpdatePosition validates and persists changes to an existing position.
func (s *PortfolioService) UpdatePosition(ctx context.Context, userID string, p domain.StockPosition) (domain.StockPosition, error) {
	if err := validatePosition(&p); err != nil {
		return domain.StockPosition{}, err
	}
	pf, err := s.repo.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return domain.StockPosition{}, err
	}
	p.PortfolioID = pf.ID
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdatePosition(ctx, p); err != nil {
		return domain.StockPosition{}, err
	}
	return p, nil
}

// RemovePosition deletes a position from the user's portfolio.
func (s *PortfolioService) RemovePosition(ctx context.Context, userID, positionID string) error {
	pf, err := s.repo.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.RemovePosition(ctx, pf.ID, positionID)
}

// ImportError records one rejected row from a bulk import.
type ImportError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Import inserts positions row by row, accumulating per-row errors instead of
// failing the whole batch.
func (s *PortfolioService) Import(ctx context.Context, userID string, positions []domain.StockPosition) (added int, rowErrs []ImportError, err error) {
	pf, err := s.repo.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	for i, p := range positions {
		if vErr := validatePosition(&p); vErr != nil {
			rowErrs = append(rowErrs, ImportError{Index: i, Error: vErr.Error()})
			continue
		}
		p.PortfolioID = pf.ID
		p.CreatedAt = time.Now().UTC()
		if _, aErr := s.repo.AddPosition(ctx, p); aErr != nil {
			rowErrs = append(rowErrs, ImportError{Index: i, Error: aErr.Error()})
			continue
		}
		added++
	}
	return added, rowErrs, nil
}
