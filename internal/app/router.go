// Package app assembles configuration, adapters and services into a running
// HTTP application.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/stock-intel/internal/adapter/httpserver"
	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/config"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// wsHandler serves the websocket endpoint; it handles its own auth via the
// token query parameter.
func BuildRouter(cfg config.Config, srv *httpserver.Server, auth *httpserver.AuthHandlers, verifier domain.TokenVerifier, wsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limit := func(perMin int) func(http.Handler) http.Handler {
		return httprate.LimitByIP(perMin, time.Minute)
	}

	// Auth endpoints carry the tightest write limit.
	r.Group(func(gr chi.Router) {
		gr.Use(httpserver.TimeoutMiddleware(10 * time.Second))
		gr.Use(limit(cfg.AlertWriteRatePerMin))
		gr.Post("/v1/auth/register", auth.Register)
		gr.Post("/v1/auth/login", auth.Login)
	})

	// Market data reads are public.
	r.Group(func(gr chi.Router) {
		gr.Use(httpserver.TimeoutMiddleware(30 * time.Second))

		gr.With(limit(cfg.PriceRatePerMin)).Get("/v1/stocks/{ticker}", srv.GetStockDetail)
		gr.With(limit(cfg.PriceRatePerMin)).Get("/v1/stocks/{ticker}/price", srv.GetPrice)
		gr.With(limit(cfg.PriceRatePerMin)).Post("/v1/stocks/prices/batch", srv.GetBatchPrices)
		gr.With(limit(cfg.HistoricalRatePerMin)).Get("/v1/stocks/{ticker}/historical", srv.GetHistorical)
		gr.With(limit(cfg.SearchRatePerMin)).Get("/v1/stocks/search", srv.Search)
		gr.With(limit(cfg.PriceRatePerMin)).Get("/v1/stocks/{ticker}/company", srv.GetCompany)
		gr.With(limit(cfg.PriceRatePerMin)).Get("/v1/stocks/{ticker}/metrics", srv.GetMetrics)
		gr.With(limit(cfg.OverviewRatePerMin)).Get("/v1/stocks/{ticker}/news", srv.GetStockNews)

		gr.With(limit(cfg.OverviewRatePerMin)).Get("/v1/market/overview", srv.GetOverview)
		gr.With(limit(cfg.OverviewRatePerMin)).Get("/v1/market/indices", srv.GetIndices)
		gr.With(limit(cfg.OverviewRatePerMin)).Get("/v1/market/trending", srv.GetTrending)
		gr.With(limit(cfg.OverviewRatePerMin)).Get("/v1/market/sectors", srv.GetSectors)
		gr.With(limit(cfg.OverviewRatePerMin)).Get("/v1/market/news", srv.GetMarketNews)

		gr.With(limit(cfg.SentimentRatePerMin)).Post("/v1/sentiment", srv.AnalyzeSentiment)
	})

	// Authenticated endpoints.
	r.Group(func(gr chi.Router) {
		gr.Use(httpserver.TimeoutMiddleware(30 * time.Second))
		gr.Use(httpserver.RequireAuth(verifier))

		gr.With(limit(cfg.AlertWriteRatePerMin)).Post("/v1/alerts", srv.CreateAlert)
		gr.Get("/v1/alerts", srv.ListAlerts)
		gr.With(limit(cfg.AlertWriteRatePerMin)).Put("/v1/alerts/{id}", srv.UpdateAlert)
		gr.With(limit(cfg.AlertWriteRatePerMin)).Delete("/v1/alerts/{id}", srv.DeleteAlert)

		gr.Get("/v1/portfolio", srv.GetPortfolio)
		gr.Post("/v1/portfolio/positions", srv.AddPosition)
		gr.Put("/v1/portfolio/positions/{id}", srv.UpdatePosition)
		gr.Delete("/v1/portfolio/positions/{id}", srv.RemovePosition)
		gr.Post("/v1/portfolio/import", srv.ImportPositions)

		gr.With(limit(cfg.NotificationRatePerMin)).Get("/v1/notifications", srv.ListNotifications)
		gr.With(limit(cfg.NotificationRatePerMin)).Put("/v1/notifications/{id}/read", srv.MarkNotificationRead)

		gr.Post("/v1/workflows", srv.CreateWorkflow)
		gr.Get("/v1/workflows", srv.ListWorkflows)
		gr.Get("/v1/workflows/{id}", srv.GetWorkflow)
		gr.Post("/v1/workflows/{id}/activate", srv.SetWorkflowActive)
		gr.Delete("/v1/workflows/{id}", srv.DeleteWorkflow)
		gr.Post("/v1/workflows/{id}/execute", srv.ExecuteWorkflow)
		gr.Get("/v1/workflows/{id}/executions", srv.ListExecutions)
		gr.Get("/v1/executions/{id}", srv.GetExecution)

		gr.Post("/v1/stocks/{ticker}/invalidate", srv.InvalidateStock)
	})

	// Websocket upgrade bypasses the timeout wrapper.
	if wsHandler != nil {
		r.Handle("/ws", wsHandler)
	}

	r.Get("/healthz", srv.Healthz)
	r.Get("/readyz", srv.Readyz)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
