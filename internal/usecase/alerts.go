package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// AlertService manages price alert CRUD on behalf of one authenticated user.
type AlertService struct {
	alerts domain.AlertRepository
}

// NewAlertService wires the alert service.
func NewAlertService(alerts domain.AlertRepository) *AlertService {
	return &AlertService{alerts: alerts}
}

var validChannels = map[string]bool{
	domain.ChannelInApp: true,
	domain.ChannelEmail: true,
	domain.ChannelPush:  true,
}

// Create validates and stores a new active alert.
func (s *AlertService) Create(ctx context.Context, a domain.PriceAlert) (domain.PriceAlert, error) {
	t, err := domain.NormalizeTicker(a.Ticker)
	if err != nil {
		return domain.PriceAlert{}, err
	}
	a.Ticker = t
	if a.Condition != domain.AlertAbove && a.Condition != domain.AlertBelow {
		return domain.PriceAlert{}, fmt.Errorf("op=alert.create: condition must be above or below: %w", domain.ErrInvalidArgument)
	}
	if a.TargetPrice <= 0 {
		return domain.PriceAlert{}, fmt.Errorf("op=alert.create: target price must be positive: %w", domain.ErrInvalidArgument)
	}
	if len(a.Channels) == 0 {
		return domain.PriceAlert{}, fmt.Errorf("op=alert.create: at least one channel required: %w", domain.ErrInvalidArgument)
	}
	for _, ch := range a.Channels {
		if !validChannels[ch] {
			return domain.PriceAlert{}, fmt.Errorf("op=alert.create: unknown channel %q: %w", ch, domain.ErrInvalidArgument)
		}
	}
	a.IsActive = true
	a.TriggeredAt = nil
	a.CreatedAt = time.Now().UTC()
	id, err := s.alerts.Create(ctx, a)
	if err != nil {
		return domain.PriceAlert{}, err
	}
	a.ID = id
	return a, nil
}

// List returns the user's alerts, optionally active only.
func (s *AlertService) List(ctx context.Context, userID string, activeOnly bool) ([]domain.PriceAlert, error) {
	return s.alerts.ListByUser(ctx, userID, activeOnly)
}

// Update mutates target price, condition, channels or active flag. Ownership
// is enforced against userID.
func (s *AlertService) Update(ctx context.Context, userID string, a domain.PriceAlert) (domain.PriceAlert, error) {
	existing, err := s.alerts.Get(ctx, a.ID)
	if err != nil {
		return domain.PriceAlert{}, err
	}
	if existing.UserID != userID {
		return domain.PriceAlert{}, fmt.Errorf("op=alert.update: %w", domain.ErrNotFound)
	}
	if a.TargetPrice <= 0 {
		return domain.PriceAlert{}, fmt.Errorf("op=alert.update: target price must be positive: %w", domain.ErrInvalidArgument)
	}
	if a.Condition != domain.AlertAbove && a.Condition != domain.AlertBelow {
		return domain.PriceAlert{}, fmt.Errorf("op=alert.update: condition must be above or below: %w", domain.ErrInvalidArgument)
	}
	existing.TargetPrice = a.TargetPrice
	existing.Condition = a.Condition
	if len(a.Channels) > 0 {
		existing.Channels = a.Channels
	}
	existing.IsActive = a.IsActive
	existing.UpdatedAt = time.Now().UTC()
	if err := s.alerts.Update(ctx, existing); err != nil {
		return domain.PriceAlert{}, err
	}
	return existing, nil
}

// Delete removes the user's alert.
func (s *AlertService) Delete(ctx context.Context, userID, id string) error {
	return s.alerts.Delete(ctx, userID, id)
}
