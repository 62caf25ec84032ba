// Package usecase contains the application services sitting between the HTTP
// adapter and the downstream tool clients: cached market data, news and
// overview composition, alert monitoring and the workflow engine.
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// StockTTLs holds the per-resource cache lifetimes.
type StockTTLs struct {
	Price      time.Duration
	Historical time.Duration
	Search     time.Duration
	Company    time.Duration
	Metrics    time.Duration
	// StalePrice bounds how long the last-known price remains usable for
	// stale-on-error reads after the fresh entry expired.
	StalePrice time.Duration
}

// DefaultStockTTLs returns the standard TTL policy.
func DefaultStockTTLs() StockTTLs {
	return StockTTLs{
		Price:      60 * time.Second,
		Historical: time.Hour,
		Search:     15 * time.Minute,
		Company:    24 * time.Hour,
		Metrics:    time.Hour,
		StalePrice: 24 * time.Hour,
	}
}

// PatternDeleter is an optional cache capability used by Invalidate to clear
// range-keyed entries (historical windows) for one ticker.
type PatternDeleter interface {
	DeletePattern(ctx context.Context, pattern string) error
}

// StockDataService caches per-ticker prices, historicals, company info and
// metrics in front of the stock-data tool server. Concurrent misses on the
// same key may race; last writer wins, which is fine for idempotent blobs.
type StockDataService struct {
	cache domain.CacheStore
	tools domain.ToolInvoker
	ttl   StockTTLs
}

// NewStockDataService wires the stock data service.
func NewStockDataService(cache domain.CacheStore, tools domain.ToolInvoker, ttl StockTTLs) *StockDataService {
	return &StockDataService{cache: cache, tools: tools, ttl: ttl}
}

func priceKey(t string) string      { return "stock:price:" + t }
func stalePriceKey(t string) string { return "stock:price:last:" + t }
func companyKey(t string) string    { return "stock:company:" + t }
func metricsKey(t string) string    { return "stock:metrics:" + t }
func searchKey(q string) string     { return "stock:search:" + strings.ToLower(q) }
func historicalKey(t, start, end string) string {
	return fmt.Sprintf("stock:historical:%s:%s:%s", t, start, end)
}

// GetCurrentPrice returns the cached quote for ticker, fetching on miss.
// When the fetch fails, the last known quote is served if one exists;
// otherwise the unavailable error propagates.
func (s *StockDataService) GetCurrentPrice(ctx context.Context, ticker string) (domain.Quote, error) {
	t, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return domain.Quote{}, err
	}
	if raw, ok, _ := s.cache.Get(ctx, priceKey(t)); ok {
		var q domain.Quote
		if err := json.Unmarshal(raw, &q); err == nil {
			observability.RecordCacheOp("price", "hit")
			return q, nil
		}
	}
	observability.RecordCacheOp("price", "miss")

	data, callErr := s.tools.Call(ctx, "get_stock_price", map[string]any{"ticker": t})
	if callErr != nil {
		if raw, ok, _ := s.cache.Get(ctx, stalePriceKey(t)); ok {
			var q domain.Quote
			if err := json.Unmarshal(raw, &q); err == nil {
				observability.RecordCacheOp("price", "stale")
				observability.LoggerFromContext(ctx).Warn("serving stale price after fetch failure",
					"ticker", t, "error", callErr)
				return q, nil
			}
		}
		return domain.Quote{}, domain.Unavailablef("price fetch failed for %s: %v", t, callErr)
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("op=stock.price decode: %w", domain.ErrSchemaInvalid)
	}
	if q.Ticker == "" {
		q.Ticker = t
	}
	if q.Price < 0 || q.Volume < 0 {
		return domain.Quote{}, fmt.Errorf("op=stock.price ticker=%s negative fields: %w", t, domain.ErrSchemaInvalid)
	}
	s.cacheQuote(ctx, t, q)
	return q, nil
}

// cacheQuote writes the fresh entry plus the long-lived last-known entry.
// Writes are skipped once the request context is cancelled.
func (s *StockDataService) cacheQuote(ctx context.Context, ticker string, q domain.Quote) {
	if ctx.Err() != nil {
		return
	}
	blob, err := json.Marshal(q)
	if err != nil {
		return
	}
	_ = s.cache.SetEx(ctx, priceKey(ticker), s.ttl.Price, blob)
	_ = s.cache.SetEx(ctx, stalePriceKey(ticker), s.ttl.StalePrice, blob)
}

// GetBatchPrices fans out GetCurrentPrice concurrently and merges the results,
// omitting tickers whose individual calls failed. The call never fails solely
// because a subset failed.
func (s *StockDataService) GetBatchPrices(ctx context.Context, tickers []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(tickers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[string]bool, len(tickers))
	for _, raw := range tickers {
		t, err := domain.NormalizeTicker(raw)
		if err != nil || seen[t] {
			continue
		}
		seen[t] = true
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			q, err := s.GetCurrentPrice(ctx, t)
			if err != nil {
				observability.LoggerFromContext(ctx).Warn("batch price fetch failed", "ticker", t, "error", err)
				return
			}
			mu.Lock()
			out[t] = q
			mu.Unlock()
		}(t)
	}
	wg.Wait()
	return out, nil
}

// GetHistoricalData returns candles for the inclusive date window, sorted
// ascending by date. Stale-on-error does not apply to historical windows.
func (s *StockDataService) GetHistoricalData(ctx context.Context, ticker, start, end string) ([]domain.Candle, error) {
	t, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	key := historicalKey(t, start, end)
	if raw, ok, _ := s.cache.Get(ctx, key); ok {
		var cs []domain.Candle
		if err := json.Unmarshal(raw, &cs); err == nil {
			observability.RecordCacheOp("historical", "hit")
			return cs, nil
		}
	}
	observability.RecordCacheOp("historical", "miss")

	data, err := s.tools.Call(ctx, "get_historical_data", map[string]any{
		"ticker": t, "start_date": start, "end_date": end,
	})
	if err != nil {
		return nil, domain.Unavailablef("historical fetch failed for %s: %v", t, err)
	}
	var cs []domain.Candle
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("op=stock.historical decode: %w", domain.ErrSchemaInvalid)
	}
	for _, c := range cs {
		if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 {
			return nil, fmt.Errorf("op=stock.historical ticker=%s negative price: %w", t, domain.ErrSchemaInvalid)
		}
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].Date < cs[j].Date })
	if ctx.Err() == nil {
		if blob, err := json.Marshal(cs); err == nil {
			_ = s.cache.SetEx(ctx, key, s.ttl.Historical, blob)
		}
	}
	return cs, nil
}

// SearchStocks searches by free-text query, re-ranking results by relevance:
// exact ticker match 3.0, ticker prefix 2.0, otherwise 1.0. The limit is
// applied after the sort. Results are cached only for queries of length >= 3
// that returned something.
func (s *StockDataService) SearchStocks(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("op=stock.search: empty query: %w", domain.ErrInvalidArgument)
	}
	key := searchKey(query)
	var results []domain.SearchResult
	if raw, ok, _ := s.cache.Get(ctx, key); ok {
		if err := json.Unmarshal(raw, &results); err == nil {
			observability.RecordCacheOp("search", "hit")
			return capResults(results, limit), nil
		}
	}
	observability.RecordCacheOp("search", "miss")

	data, err := s.tools.Call(ctx, "search_stocks", map[string]any{"query": query})
	if err != nil {
		return nil, domain.Unavailablef("search failed for %q: %v", query, err)
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("op=stock.search decode: %w", domain.ErrSchemaInvalid)
	}

	upper := strings.ToUpper(query)
	for i := range results {
		switch {
		case results[i].Ticker == upper:
			results[i].RelevanceScore = 3.0
		case strings.HasPrefix(results[i].Ticker, upper):
			results[i].RelevanceScore = 2.0
		default:
			results[i].RelevanceScore = 1.0
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	if len(query) >= 3 && len(results) > 0 && ctx.Err() == nil {
		if blob, err := json.Marshal(results); err == nil {
			_ = s.cache.SetEx(ctx, key, s.ttl.Search, blob)
		}
	}
	return capResults(results, limit), nil
}

func capResults(rs []domain.SearchResult, limit int) []domain.SearchResult {
	if limit > 0 && len(rs) > limit {
		return rs[:limit]
	}
	return rs
}

// GetCompanyInfo returns cached company info for ticker.
func (s *StockDataService) GetCompanyInfo(ctx context.Context, ticker string) (domain.CompanyInfo, error) {
	t, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return domain.CompanyInfo{}, err
	}
	if raw, ok, _ := s.cache.Get(ctx, companyKey(t)); ok {
		var ci domain.CompanyInfo
		if err := json.Unmarshal(raw, &ci); err == nil {
			observability.RecordCacheOp("company", "hit")
			return ci, nil
		}
	}
	observability.RecordCacheOp("company", "miss")

	data, err := s.tools.Call(ctx, "get_company_info", map[string]any{"ticker": t})
	if err != nil {
		return domain.CompanyInfo{}, domain.Unavailablef("company info fetch failed for %s: %v", t, err)
	}
	var ci domain.CompanyInfo
	if err := json.Unmarshal(data, &ci); err != nil {
		return domain.CompanyInfo{}, fmt.Errorf("op=stock.company decode: %w", domain.ErrSchemaInvalid)
	}
	if ctx.Err() == nil {
		if blob, err := json.Marshal(ci); err == nil {
			_ = s.cache.SetEx(ctx, companyKey(t), s.ttl.Company, blob)
		}
	}
	return ci, nil
}

// GetFinancialMetrics returns cached financial metrics for ticker.
func (s *StockDataService) GetFinancialMetrics(ctx context.Context, ticker string) (domain.FinancialMetrics, error) {
	t, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return domain.FinancialMetrics{}, err
	}
	if raw, ok, _ := s.cache.Get(ctx, metricsKey(t)); ok {
		var fm domain.FinancialMetrics
		if err := json.Unmarshal(raw, &fm); err == nil {
			observability.RecordCacheOp("metrics", "hit")
			return fm, nil
		}
	}
	observability.RecordCacheOp("metrics", "miss")

	data, err := s.tools.Call(ctx, "get_financial_metrics", map[string]any{"ticker": t})
	if err != nil {
		return domain.FinancialMetrics{}, domain.Unavailablef("metrics fetch failed for %s: %v", t, err)
	}
	var fm domain.FinancialMetrics
	if err := json.Unmarshal(data, &fm); err != nil {
		return domain.FinancialMetrics{}, fmt.Errorf("op=stock.metrics decode: %w", domain.ErrSchemaInvalid)
	}
	if ctx.Err() == nil {
		if blob, err := json.Marshal(fm); err == nil {
			_ = s.cache.SetEx(ctx, metricsKey(t), s.ttl.Metrics, blob)
		}
	}
	return fm, nil
}

// Invalidate deletes all cache keys derived from ticker. Historical windows
// are cleared via the pattern capability when the cache supports it.
func (s *StockDataService) Invalidate(ctx context.Context, ticker string) error {
	t, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, priceKey(t), stalePriceKey(t), companyKey(t), metricsKey(t)); err != nil {
		return err
	}
	if pd, ok := s.cache.(PatternDeleter); ok {
		return pd.DeletePattern(ctx, "stock:historical:"+t+":*")
	}
	return nil
}
