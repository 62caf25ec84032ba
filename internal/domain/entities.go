package domain

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// User owns at most one portfolio plus alerts, notifications and workflows.
// Email is case-normalized on write; PasswordHash is an opaque verifier.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Portfolio is the exclusive child of a user aggregating positions.
type Portfolio struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// StockPosition is a holding inside a portfolio.
// Invariant: Ticker is always upper-cased on write.
type StockPosition struct {
	ID            string
	PortfolioID   string
	Ticker        string
	Quantity      float64
	PurchasePrice float64
	PurchaseDate  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AlertCondition enumerates price alert conditions.
type AlertCondition string

const (
	AlertAbove AlertCondition = "above"
	AlertBelow AlertCondition = "below"
)

// Notification channels accepted on alerts.
const (
	ChannelInApp = "in-app"
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// PriceAlert fires when a ticker crosses its target price.
// Invariant: on trigger, IsActive=false and TriggeredAt are set atomically.
type PriceAlert struct {
	ID          string
	UserID      string
	Ticker      string
	Condition   AlertCondition
	TargetPrice float64
	Channels    []string
	IsActive    bool
	TriggeredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Notification is write-only by services; mutated only via mark-read.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Payload   json.RawMessage
	IsRead    bool
	CreatedAt time.Time
}

// ExecutionMode selects how a workflow graph is traversed.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// Workflow holds a user-defined directed graph of agent steps.
type Workflow struct {
	ID            string
	UserID        string
	Name          string
	Type          string
	Definition    json.RawMessage
	ExecutionMode ExecutionMode
	Schedule      string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExecutionStatus enumerates workflow execution states.
// Transitions are monotone forward: pending -> running -> completed|failed.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// WorkflowExecution records one run of a workflow.
// Invariant: CompletedAt is set iff Status is completed or failed.
type WorkflowExecution struct {
	ID              string
	WorkflowID      string
	Status          ExecutionStatus
	Progress        int
	CurrentNode     string
	Results         map[string]json.RawMessage
	Errors          []string
	ExecutionTimeMS int64
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// tickerRe matches a trimmed, upper-cased ticker: 1-5 letters with an optional
// single-letter class suffix (e.g. BRK.B).
var tickerRe = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)

// NormalizeTicker trims and upper-cases s and validates the ticker shape.
func NormalizeTicker(s string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if !tickerRe.MatchString(t) {
		return "", NewAppError(ErrInvalidArgument, "INVALID_TICKER",
			"ticker must be 1-5 uppercase letters with optional class suffix",
			"Invalid ticker symbol.", false)
	}
	return t, nil
}

// Context is an alias to the standard context, re-exported so repository
// signatures read uniformly.
type Context = context.Context

// Ports (implemented by adapters)

// CacheStore is a Redis-compatible TTL key-value store. Get reports presence
// separately from errors so a nil value sentinel can round-trip.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// ToolInvoker executes a named tool on a downstream tool server and returns
// the raw data payload. Implementations retry retryable failures and gate the
// server behind a circuit breaker.
type ToolInvoker interface {
	Call(ctx context.Context, tool string, params map[string]any) (json.RawMessage, error)
}

// SentimentAnalyzer scores a piece of text. The keyword scorer behind this
// port is deliberately thin; composition logic lives in the services.
type SentimentAnalyzer interface {
	Analyze(text string) Sentiment
}

// Notifier pushes a notification to all live connections of a user and
// reports how many were delivered. Delivery is best-effort, at-most-once.
type Notifier interface {
	SendNotificationToUser(userID string, n Notification) int
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// Repositories (ports)

type UserRepository interface {
	Create(ctx context.Context, u User) (string, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Get(ctx context.Context, id string) (User, error)
}

type PortfolioRepository interface {
	GetOrCreateForUser(ctx context.Context, userID string) (Portfolio, error)
	ListPositions(ctx context.Context, portfolioID string) ([]StockPosition, error)
	AddPosition(ctx context.Context, p StockPosition) (string, error)
	UpdatePosition(ctx context.Context, p StockPosition) error
	RemovePosition(ctx context.Context, portfolioID, positionID string) error
}

type AlertRepository interface {
	Create(ctx context.Context, a PriceAlert) (string, error)
	Get(ctx context.Context, id string) (PriceAlert, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]PriceAlert, error)
	ListActive(ctx context.Context, tickers []string) ([]PriceAlert, error)
	Update(ctx context.Context, a PriceAlert) error
	// Trigger atomically deactivates the alert and stamps triggered_at.
	// It reports false when a racing evaluator already triggered it.
	Trigger(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, userID, id string) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n Notification) (string, error)
	List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	// CountSince counts notifications of a type created for a user after the
	// cutoff. Used by the anti-fatigue gate.
	CountSince(ctx context.Context, userID, typ string, since time.Time) (int, error)
}

type WorkflowRepository interface {
	Create(ctx context.Context, w Workflow) (string, error)
	Get(ctx context.Context, id string) (Workflow, error)
	ListByUser(ctx context.Context, userID string) ([]Workflow, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, userID, id string) error
}

type ExecutionRepository interface {
	Create(ctx context.Context, e WorkflowExecution) (string, error)
	Update(ctx context.Context, e WorkflowExecution) error
	Get(ctx context.Context, id string) (WorkflowExecution, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]WorkflowExecution, error)
}
