package usecase

import (
	"context"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// NotificationService lists and mutates a user's notifications.
// Notifications are write-only by other services; the only mutation exposed
// here is mark-read.
type NotificationService struct {
	notifs domain.NotificationRepository
}

// NewNotificationService wires the notification service.
func NewNotificationService(notifs domain.NotificationRepository) *NotificationService {
	return &NotificationService{notifs: notifs}
}

// List returns the newest notifications for the user.
func (s *NotificationService) List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.notifs.List(ctx, userID, limit, unreadOnly)
}

// MarkRead marks one notification read. Not-found covers foreign ids.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.notifs.MarkRead(ctx, userID, id)
}
