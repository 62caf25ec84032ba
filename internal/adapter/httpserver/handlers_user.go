package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/stock-intel/internal/domain"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

// DTOs keep the wire shape stable and snake_cased independently of the
// domain structs.

type alertDTO struct {
	ID          string     `json:"id"`
	Ticker      string     `json:"ticker"`
	Condition   string     `json:"condition"`
	TargetPrice float64    `json:"target_price"`
	Channels    []string   `json:"channels"`
	IsActive    bool       `json:"is_active"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toAlertDTO(a domain.PriceAlert) alertDTO {
	return alertDTO{
		ID: a.ID, Ticker: a.Ticker, Condition: string(a.Condition),
		TargetPrice: a.TargetPrice, Channels: a.Channels, IsActive: a.IsActive,
		TriggeredAt: a.TriggeredAt, CreatedAt: a.CreatedAt,
	}
}

type alertRequest struct {
	Ticker      string   `json:"ticker" validate:"required,max=8"`
	Condition   string   `json:"condition" validate:"required,oneof=above below"`
	TargetPrice float64  `json:"target_price" validate:"gt=0"`
	Channels    []string `json:"channels" validate:"min=1,dive,oneof=in-app email push"`
}

// CreateAlert handles POST /v1/alerts.
func (s *Server) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if details, err := validateBody(req); err != nil {
		writeError(w, r, err, details)
		return
	}
	a, err := s.Alerts.Create(r.Context(), domain.PriceAlert{
		UserID:      UserIDFrom(r),
		Ticker:      req.Ticker,
		Condition:   domain.AlertCondition(req.Condition),
		TargetPrice: req.TargetPrice,
		Channels:    req.Channels,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toAlertDTO(a))
}

// ListAlerts handles GET /v1/alerts?active=true.
func (s *Server) ListAlerts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	alerts, err := s.Alerts.List(r.Context(), UserIDFrom(r), activeOnly)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]alertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

// UpdateAlert handles PUT /v1/alerts/{id}.
func (s *Server) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if details, err := validateBody(req); err != nil {
		writeError(w, r, err, details)
		return
	}
	a, err := s.Alerts.Update(r.Context(), UserIDFrom(r), domain.PriceAlert{
		ID:          chi.URLParam(r, "id"),
		Ticker:      req.Ticker,
		Condition:   domain.AlertCondition(req.Condition),
		TargetPrice: req.TargetPrice,
		Channels:    req.Channels,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTO(a))
}

// DeleteAlert handles DELETE /v1/alerts/{id}.
func (s *Server) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.Alerts.Delete(r.Context(), UserIDFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type positionDTO struct {
	ID            string    `json:"id"`
	Ticker        string    `json:"ticker"`
	Quantity      float64   `json:"quantity"`
	PurchasePrice float64   `json:"purchase_price"`
	PurchaseDate  time.Time `json:"purchase_date"`
}

func toPositionDTO(p domain.StockPosition) positionDTO {
	return positionDTO{ID: p.ID, Ticker: p.Ticker, Quantity: p.Quantity, PurchasePrice: p.PurchasePrice, PurchaseDate: p.PurchaseDate}
}

type positionRequest struct {
	Ticker        string    `json:"ticker" validate:"required,max=8"`
	Quantity      float64   `json:"quantity" validate:"gt=0"`
	PurchasePrice float64   `json:"purchase_price" validate:"gte=0"`
	PurchaseDate  time.Time `json:"purchase_date" validate:"required"`
}

func (req positionRequest) toDomain() domain.StockPosition {
	return domain.StockPosition{
		Ticker:        req.Ticker,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		PurchaseDate:  req.PurchaseDate,
	}
}

// GetPortfolio handles GET /v1/portfolio.
func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, positions, err := s.Portfolio.Get(r.Context(), UserIDFrom(r))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]positionDTO, 0, len(positions))
	for _, pos := range positions {
		out = append(out, toPositionDTO(pos))
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": p.ID, "positions": out})
}

// AddPosition handles POST /v1/portfolio/positions.
func (s *Server) AddPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if details, err := validateBody(req); err != nil {
		writeError(w, r, err, details)
		return
	}
	p, err := s.Portfolio.AddPosition(r.Context(), UserIDFrom(r), req.toDomain())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toPositionDTO(p))
}

// UpdatePosition handles PUT /v1/portfolio/positions/{id}.
func (s *Server) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if details, err := validateBody(req); err != nil {
		writeError(w, r, err, details)
		return
	}
	pos := req.toDomain()
	pos.ID = chi.URLParam(r, "id")
	p, err := s.Portfolio.UpdatePosition(r.Context(), UserIDFrom(r), pos)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toPositionDTO(p))
}

// RemovePosition handles DELETE /v1/portfolio/positions/{id}.
func (s *Server) RemovePosition(w http.ResponseWriter, r *http.Request) {
	if err := s.Portfolio.RemovePosition(r.Context(), UserIDFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importRequest struct {
	Positions []positionRequest `json:"positions"`
}

// ImportPositions handles POST /v1/portfolio/import. Rows are inserted
// individually; rejected rows come back with their index.
func (s *Server) ImportPositions(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if len(req.Positions) == 0 || len(req.Positions) > 500 {
		writeError(w, r, fmt.Errorf("positions must contain 1-500 rows: %w", domain.ErrInvalidArgument), nil)
		return
	}
	rows := make([]domain.StockPosition, 0, len(req.Positions))
	for _, p := range req.Positions {
		rows = append(rows, p.toDomain())
	}
	added, rowErrs, err := s.Portfolio.Import(r.Context(), UserIDFrom(r), rows)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if rowErrs == nil {
		rowErrs = []usecase.ImportError{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "errors": rowErrs})
}

type notificationDTO struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListNotifications handles GET /v1/notifications?limit=&unread_only=true.
func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, res := ValidateLimit(r.URL.Query().Get("limit"), 100)
	if !res.Valid {
		writeError(w, r, fmt.Errorf("invalid limit: %w", domain.ErrInvalidArgument), res.Errors)
		return
	}
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	notifs, err := s.Notifications.List(r.Context(), UserIDFrom(r), limit, unreadOnly)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]notificationDTO, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, notificationDTO{
			ID: n.ID, Type: n.Type, Title: n.Title, Message: n.Message,
			Payload: n.Payload, IsRead: n.IsRead, CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

// MarkNotificationRead handles PUT /v1/notifications/{id}/read.
func (s *Server) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Notifications.MarkRead(r.Context(), UserIDFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
