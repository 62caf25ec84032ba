package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/stock-intel/internal/domain"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

// Server aggregates the services behind the REST API.
type Server struct {
	Stocks        *usecase.StockDataService
	News          *usecase.NewsService
	Market        *usecase.MarketOverviewService
	Sentiment     domain.SentimentAnalyzer
	Alerts        *usecase.AlertService
	Portfolio     *usecase.PortfolioService
	Notifications *usecase.NotificationService
	Workflows     *usecase.WorkflowService
	Engine        *usecase.WorkflowEngine

	// Probes run on /readyz; each gets a short deadline.
	Probes map[string]func(ctx context.Context) error
}

func tickerParam(r *http.Request) (string, error) {
	return domain.NormalizeTicker(chi.URLParam(r, "ticker"))
}

// GetStockDetail handles GET /v1/stocks/{ticker}, a composite of three
// sub-calls. Price is required and propagates its error; company and metrics
// degrade to null when their sub-calls fail.
func (s *Server) GetStockDetail(w http.ResponseWriter, r *http.Request) {
	t, err := tickerParam(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	ctx := r.Context()

	var (
		wg       sync.WaitGroup
		quote    domain.Quote
		priceErr error
		company  *domain.CompanyInfo
		metrics  *domain.FinancialMetrics
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		quote, priceErr = s.Stocks.GetCurrentPrice(ctx, t)
	}()
	go func() {
		defer wg.Done()
		if c, err := s.Stocks.GetCompanyInfo(ctx, t); err == nil {
			company = &c
		}
	}()
	go func() {
		defer wg.Done()
		if m, err := s.Stocks.GetFinancialMetrics(ctx, t); err == nil {
			metrics = &m
		}
	}()
	wg.Wait()

	if priceErr != nil {
		writeError(w, r, priceErr, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":  t,
		"price":   quote,
		"company": company,
		"metrics": metrics,
	})
}

// GetPrice handles GET /v1/stocks/{ticker}/price.
func (s *Server) GetPrice(w http.ResponseWriter, r *http.Request) {
	t, err := tickerParam(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	q, err := s.Stocks.GetCurrentPrice(r.Context(), t)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type batchPricesRequest struct {
	Tickers []string `json:"tickers"`
}

// GetBatchPrices handles POST /v1/stocks/prices/batch.
func (s *Server) GetBatchPrices(w http.ResponseWriter, r *http.Request) {
	var req batchPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	if len(req.Tickers) == 0 || len(req.Tickers) > 50 {
		writeError(w, r, fmt.Errorf("tickers must contain 1-50 symbols: %w", domain.ErrInvalidArgument), nil)
		return
	}
	quotes, err := s.Stocks.GetBatchPrices(r.Context(), req.Tickers)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

// GetHistorical handles GET /v1/stocks/{ticker}/historical?start_date=&end_date=.
func (s *Server) GetHistorical(w http.ResponseWriter, r *http.Request) {
	t, err := tickerParam(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	start := r.URL.Query().Get("start_date")
	end := r.URL.Query().Get("end_date")
	for _, res := range []ValidationResult{ValidateDate("start_date", start), ValidateDate("end_date", end)} {
		if !res.Valid {
			writeError(w, r, fmt.Errorf("invalid date parameter: %w", domain.ErrInvalidArgument), res.Errors)
			return
		}
	}
	candles, err := s.Stocks.GetHistoricalData(r.Context(), t, start, end)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticker": t, "candles": candles})
}

// Search handles GET /v1/stocks/search?q=&limit=.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if res := ValidateSearchQuery(q); !res.Valid {
		writeError(w, r, fmt.Errorf("invalid search query: %w", domain.ErrInvalidArgument), res.Errors)
		return
	}
	limit, res := ValidateLimit(r.URL.Query().Get("limit"), 50)
	if !res.Valid {
		writeError(w, r, fmt.Errorf("invalid limit: %w", domain.ErrInvalidArgument), res.Errors)
		return
	}
	results, err := s.Stocks.SearchStocks(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// GetCompany handles GET /v1/stocks/{ticker}/company.
func (s *Server) GetCompany(w http.ResponseWriter, r *http.Request) {
	t, err := tickerParam(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	info, err := s.Stocks.GetCompanyInfo(r.Context(), t)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetMetrics handles GET /v1/stocks/{ticker}/metrics.
func (s *Server) GetMetrics(w http.ResponseWriter, r *http.Request) {
	t, err := tickerParam(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	m, err := s.Stocks.GetFinancialMetrics(r.Context(), t)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// InvalidateStock handles POST /v1/stocks/{ticker}/invalidate.
func (s *Server) InvalidateStock(w http.ResponseWriter, r *http.Request) {
	t, err := tickerParam(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if err := s.Stocks.Invalidate(r.Context(), t); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "ticker": t})
}

// GetStockNews handles GET /v1/stocks/{ticker}/news?limit=.
func (s *Server) GetStockNews(w http.ResponseWriter, r *http.Request) {
	t, err := tickerParam(r)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	limit, res := ValidateLimit(r.URL.Query().Get("limit"), 50)
	if !res.Valid {
		writeError(w, r, fmt.Errorf("invalid limit: %w", domain.ErrInvalidArgument), res.Errors)
		return
	}
	articles, err := s.News.GetStockNews(r.Context(), t, limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticker": t, "articles": articles})
}

// GetMarketNews handles GET /v1/market/news?limit=.
func (s *Server) GetMarketNews(w http.ResponseWriter, r *http.Request) {
	limit, res := ValidateLimit(r.URL.Query().Get("limit"), 50)
	if !res.Valid {
		writeError(w, r, fmt.Errorf("invalid limit: %w", domain.ErrInvalidArgument), res.Errors)
		return
	}
	articles, err := s.News.GetMarketNews(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

// GetOverview handles GET /v1/market/overview?include_sectors=true.
func (s *Server) GetOverview(w http.ResponseWriter, r *http.Request) {
	includeSectors := r.URL.Query().Get("include_sectors") == "true"
	ov, err := s.Market.GetOverview(r.Context(), includeSectors)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// GetIndices handles GET /v1/market/indices.
func (s *Server) GetIndices(w http.ResponseWriter, r *http.Request) {
	indices, err := s.Market.GetIndices(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indices": indices})
}

// GetTrending handles GET /v1/market/trending?limit=.
func (s *Server) GetTrending(w http.ResponseWriter, r *http.Request) {
	limit, res := ValidateLimit(r.URL.Query().Get("limit"), 25)
	if !res.Valid {
		writeError(w, r, fmt.Errorf("invalid limit: %w", domain.ErrInvalidArgument), res.Errors)
		return
	}
	trending, err := s.Market.GetTrending(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trending": trending})
}

// GetSectors handles GET /v1/market/sectors. Sector data is always fetched
// fresh.
func (s *Server) GetSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := s.Market.GetSectorPerformance(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sectors": sectors})
}

type sentimentRequest struct {
	Text string `json:"text"`
}

// AnalyzeSentiment handles POST /v1/sentiment.
func (s *Server) AnalyzeSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("malformed body: %w", domain.ErrInvalidArgument), nil)
		return
	}
	text := SanitizeString(req.Text)
	if text == "" {
		writeError(w, r, fmt.Errorf("text is required: %w", domain.ErrInvalidArgument), nil)
		return
	}
	writeJSON(w, http.StatusOK, s.Sentiment.Analyze(text))
}

// Healthz reports process liveness.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs the registered dependency probes.
func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	checks := make(map[string]string, len(s.Probes))
	for name, probe := range s.Probes {
		if err := probe(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}
