package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// BatchPriceFetcher is the slice of StockDataService the monitor needs.
type BatchPriceFetcher interface {
	GetBatchPrices(ctx context.Context, tickers []string) (map[string]domain.Quote, error)
}

// MonitorConfig parameterizes the alert evaluation loop.
type MonitorConfig struct {
	Interval time.Duration
	// Window and MaxPerWindow bound notification creation per (user, type):
	// the anti-fatigue gate.
	Window       time.Duration
	MaxPerWindow int
}

// DefaultMonitorConfig returns the standard monitor policy.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{Interval: 60 * time.Second, Window: 15 * time.Minute, MaxPerWindow: 5}
}

// AlertMonitor periodically evaluates active price alerts against fresh
// prices. A trigger always deactivates the alert and stamps triggered_at;
// only the notification is gated by the anti-fatigue check.
type AlertMonitor struct {
	alerts   domain.AlertRepository
	notifs   domain.NotificationRepository
	prices   BatchPriceFetcher
	notifier domain.Notifier
	cfg      MonitorConfig
}

// NewAlertMonitor wires the alert monitor.
func NewAlertMonitor(alerts domain.AlertRepository, notifs domain.NotificationRepository, prices BatchPriceFetcher, notifier domain.Notifier, cfg MonitorConfig) *AlertMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = 5
	}
	return &AlertMonitor{alerts: alerts, notifs: notifs, prices: prices, notifier: notifier, cfg: cfg}
}

// Run evaluates alerts on the configured interval until ctx is cancelled.
func (m *AlertMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	slog.Info("alert monitor started", slog.Duration("interval", m.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			slog.Info("alert monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.EvaluateOnce(ctx, nil); err != nil {
				slog.Error("alert evaluation pass failed", slog.Any("error", err))
			}
		}
	}
}

// EvaluateOnce runs a single evaluation pass, optionally restricted to the
// given tickers, and returns the number of alerts triggered.
func (m *AlertMonitor) EvaluateOnce(ctx context.Context, tickers []string) (int, error) {
	alerts, err := m.alerts.ListActive(ctx, tickers)
	if err != nil {
		return 0, fmt.Errorf("op=monitor.list_active: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	unique := make([]string, 0, len(alerts))
	seen := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		if !seen[a.Ticker] {
			seen[a.Ticker] = true
			unique = append(unique, a.Ticker)
		}
	}
	quotes, err := m.prices.GetBatchPrices(ctx, unique)
	if err != nil {
		return 0, fmt.Errorf("op=monitor.batch_prices: %w", err)
	}

	triggered := 0
	for _, a := range alerts {
		q, ok := quotes[a.Ticker]
		if !ok {
			continue
		}
		if !conditionMet(a, q.Price) {
			continue
		}
		won, err := m.trigger(ctx, a, q)
		if err != nil {
			slog.Error("alert trigger failed", slog.String("alert_id", a.ID), slog.Any("error", err))
		}
		if won {
			triggered++
		}
	}
	return triggered, nil
}

func conditionMet(a domain.PriceAlert, price float64) bool {
	switch a.Condition {
	case domain.AlertAbove:
		return price >= a.TargetPrice
	case domain.AlertBelow:
		return price <= a.TargetPrice
	default:
		return false
	}
}

// trigger deactivates the alert and, when the anti-fatigue gate passes,
// creates and pushes the notification. It reports whether this evaluator won
// the deactivation; a racing evaluator loses and does not notify twice.
func (m *AlertMonitor) trigger(ctx context.Context, a domain.PriceAlert, q domain.Quote) (bool, error) {
	now := time.Now().UTC()
	won, err := m.alerts.Trigger(ctx, a.ID, now)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	observability.AlertsTriggeredTotal.WithLabelValues(string(a.Condition)).Inc()

	const notifType = "price_alert"
	count, err := m.notifs.CountSince(ctx, a.UserID, notifType, now.Add(-m.cfg.Window))
	if err != nil {
		return true, err
	}
	if count >= m.cfg.MaxPerWindow {
		slog.Info("alert notification suppressed by anti-fatigue gate",
			slog.String("user_id", a.UserID),
			slog.Int("recent", count))
		return true, nil
	}

	payload, _ := json.Marshal(map[string]any{
		"alert_id":     a.ID,
		"ticker":       a.Ticker,
		"condition":    a.Condition,
		"target_price": a.TargetPrice,
		"price":        q.Price,
		"channels":     a.Channels,
	})
	n := domain.Notification{
		UserID:    a.UserID,
		Type:      notifType,
		Title:     fmt.Sprintf("%s alert triggered", a.Ticker),
		Message:   fmt.Sprintf("%s is %s your target of %.2f (now %.2f)", a.Ticker, directionWord(a.Condition), a.TargetPrice, q.Price),
		Payload:   payload,
		CreatedAt: now,
	}
	id, err := m.notifs.Create(ctx, n)
	if err != nil {
		return true, err
	}
	n.ID = id
	// Fire-and-forget push to live connections.
	go m.notifier.SendNotificationToUser(a.UserID, n)
	return true, nil
}

func directionWord(c domain.AlertCondition) string {
	if c == domain.AlertAbove {
		return "above"
	}
	return "below"
}
