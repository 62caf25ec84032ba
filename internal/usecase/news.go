package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// NewsService retrieves per-ticker and market-wide news through the news tool
// server, deduplicates by normalized headline and attaches sentiment.
type NewsService struct {
	cache    domain.CacheStore
	tools    domain.ToolInvoker
	analyzer domain.SentimentAnalyzer
	ttl      time.Duration
}

// NewNewsService wires the news service.
func NewNewsService(cache domain.CacheStore, tools domain.ToolInvoker, analyzer domain.SentimentAnalyzer, ttl time.Duration) *NewsService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &NewsService{cache: cache, tools: tools, analyzer: analyzer, ttl: ttl}
}

// GetStockNews returns deduplicated, sentiment-annotated news for one ticker.
func (s *NewsService) GetStockNews(ctx context.Context, ticker string, limit int) ([]domain.NewsArticle, error) {
	t, err := domain.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	key := fmt.Sprintf("news:stock:%s:%d", t, limit)
	return s.fetchNews(ctx, key, "get_stock_news", map[string]any{"ticker": t, "limit": limit})
}

// GetMarketNews returns deduplicated, sentiment-annotated market-wide news.
func (s *NewsService) GetMarketNews(ctx context.Context, limit int) ([]domain.NewsArticle, error) {
	if limit <= 0 {
		limit = 20
	}
	key := fmt.Sprintf("news:market:%d", limit)
	return s.fetchNews(ctx, key, "get_market_news", map[string]any{"limit": limit})
}

func (s *NewsService) fetchNews(ctx context.Context, key, tool string, params map[string]any) ([]domain.NewsArticle, error) {
	if raw, ok, _ := s.cache.Get(ctx, key); ok {
		var articles []domain.NewsArticle
		if err := json.Unmarshal(raw, &articles); err == nil {
			observability.RecordCacheOp("news", "hit")
			return articles, nil
		}
	}
	observability.RecordCacheOp("news", "miss")

	data, err := s.tools.Call(ctx, tool, params)
	if err != nil {
		return nil, domain.Unavailablef("news fetch failed: %v", err)
	}
	var articles []domain.NewsArticle
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, fmt.Errorf("op=news.decode tool=%s: %w", tool, domain.ErrSchemaInvalid)
	}

	articles = dedupeByHeadline(articles)
	for i := range articles {
		if articles[i].Sentiment == nil {
			sent := s.analyzer.Analyze(articles[i].Headline + " " + articles[i].Summary)
			articles[i].Sentiment = &sent
		}
	}

	if ctx.Err() == nil {
		if blob, err := json.Marshal(articles); err == nil {
			_ = s.cache.SetEx(ctx, key, s.ttl, blob)
		}
	}
	return articles, nil
}

// dedupeByHeadline keeps the first article per distinct normalized headline.
// Normalization: lowercase, trim, collapse inner whitespace.
func dedupeByHeadline(in []domain.NewsArticle) []domain.NewsArticle {
	seen := make(map[string]bool, len(in))
	out := make([]domain.NewsArticle, 0, len(in))
	for _, a := range in {
		norm := normalizeHeadline(a.Headline)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, a)
	}
	return out
}

func normalizeHeadline(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(h))), " ")
}
