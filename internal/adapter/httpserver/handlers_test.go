package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/stock-intel/internal/adapter/cache"
	"github.com/fairyhunter13/stock-intel/internal/domain"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

type scriptedInvoker func(tool string, params map[string]any) (json.RawMessage, error)

func (f scriptedInvoker) Call(_ context.Context, tool string, params map[string]any) (json.RawMessage, error) {
	return f(tool, params)
}

func testServer(t *testing.T, inv domain.ToolInvoker) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	store := cache.NewStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return &Server{
		Stocks:    usecase.NewStockDataService(store, inv, usecase.DefaultStockTTLs()),
		Sentiment: usecase.NewKeywordAnalyzer(),
	}
}

func marketRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/stocks/search", s.Search)
	r.Get("/v1/stocks/{ticker}", s.GetStockDetail)
	r.Get("/v1/stocks/{ticker}/price", s.GetPrice)
	r.Get("/v1/stocks/{ticker}/historical", s.GetHistorical)
	r.Post("/v1/stocks/prices/batch", s.GetBatchPrices)
	r.Post("/v1/sentiment", s.AnalyzeSentiment)
	r.Get("/healthz", s.Healthz)
	r.Get("/readyz", s.Readyz)
	return r
}

func TestGetPrice_OK(t *testing.T) {
	s := testServer(t, scriptedInvoker(func(string, map[string]any) (json.RawMessage, error) {
		return json.RawMessage(`{"ticker":"AAPL","price":187.5}`), nil
	}))
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL/price", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var q domain.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, 187.5, q.Price)
}

func TestGetPrice_BadTicker(t *testing.T) {
	s := testServer(t, scriptedInvoker(nil))
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/TOOLONG99/price", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPrice_Unavailable(t *testing.T) {
	s := testServer(t, scriptedInvoker(func(string, map[string]any) (json.RawMessage, error) {
		return nil, errors.New("down")
	}))
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL/price", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	got := decodeError(t, rec)
	assert.True(t, got.Retryable)
}

func TestGetStockDetail_PartialFailureDegrades(t *testing.T) {
	s := testServer(t, scriptedInvoker(func(tool string, _ map[string]any) (json.RawMessage, error) {
		switch tool {
		case "get_stock_price":
			return json.RawMessage(`{"ticker":"AAPL","price":187.5}`), nil
		case "get_financial_metrics":
			return json.RawMessage(`{"ticker":"AAPL","pe_ratio":29.1}`), nil
		default:
			return nil, errors.New("company lookup down")
		}
	}))
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Ticker  string           `json:"ticker"`
		Price   domain.Quote     `json:"price"`
		Company *json.RawMessage `json:"company"`
		Metrics *json.RawMessage `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, 187.5, resp.Price.Price)
	// The failed sub-call degrades to null, the others survive.
	assert.Nil(t, resp.Company)
	assert.NotNil(t, resp.Metrics)
}

func TestGetStockDetail_PriceFailurePropagates(t *testing.T) {
	s := testServer(t, scriptedInvoker(func(string, map[string]any) (json.RawMessage, error) {
		return nil, errors.New("down")
	}))
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetHistorical_DateParams(t *testing.T) {
	s := testServer(t, scriptedInvoker(func(string, map[string]any) (json.RawMessage, error) {
		return json.RawMessage(`[]`), nil
	}))
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL/historical?start_date=31-01-2024", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/AAPL/historical?start_date=2024-01-01&end_date=2024-01-31", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetBatchPrices_Validation(t *testing.T) {
	s := testServer(t, scriptedInvoker(nil))

	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/stocks/prices/batch", strings.NewReader(`{"tickers":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/stocks/prices/batch", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBatchPrices_OK(t *testing.T) {
	s := testServer(t, scriptedInvoker(func(_ string, params map[string]any) (json.RawMessage, error) {
		blob, _ := json.Marshal(map[string]any{"ticker": params["ticker"], "price": 10.0})
		return blob, nil
	}))
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"tickers":["AAPL","MSFT"]}`)
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/stocks/prices/batch", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Quotes map[string]domain.Quote `json:"quotes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Quotes, 2)
}

func TestSearch_Validation(t *testing.T) {
	s := testServer(t, scriptedInvoker(nil))

	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/search", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stocks/search?q=apple&limit=999", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeSentiment(t *testing.T) {
	s := testServer(t, scriptedInvoker(nil))

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"text":"shares surge on strong growth"}`)
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sentiment", body))
	require.Equal(t, http.StatusOK, rec.Code)
	var sent domain.Sentiment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	assert.Equal(t, "positive", sent.Label)

	rec = httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sentiment", strings.NewReader(`{"text":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := testServer(t, scriptedInvoker(nil))
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_ReportsPerProbe(t *testing.T) {
	s := testServer(t, scriptedInvoker(nil))
	s.Probes = map[string]func(ctx context.Context) error{
		"db":    func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}
	rec := httptest.NewRecorder()
	marketRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Checks["db"])
	assert.Contains(t, resp.Checks["redis"], "connection refused")
}
