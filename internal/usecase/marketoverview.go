package usecase

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/adapter/observability"
	"github.com/fairyhunter13/stock-intel/internal/domain"
)

const overviewKey = "market:overview"

// MarketOverviewService composes headlines, indices, trending tickers and an
// aggregate sentiment into one cached artifact. The sector heatmap is never
// part of the cached payload; it is fetched freshly whenever requested.
type MarketOverviewService struct {
	cache    domain.CacheStore
	market   domain.ToolInvoker
	news     *NewsService
	analyzer domain.SentimentAnalyzer
	ttl      time.Duration
}

// NewMarketOverviewService wires the overview service. market is the
// market-data tool server invoker.
func NewMarketOverviewService(cache domain.CacheStore, market domain.ToolInvoker, news *NewsService, analyzer domain.SentimentAnalyzer, ttl time.Duration) *MarketOverviewService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MarketOverviewService{cache: cache, market: market, news: news, analyzer: analyzer, ttl: ttl}
}

// GetOverview returns the composite market overview. includeSectors controls
// whether the sector heatmap is attached; it depends on the caller, not on
// cache state.
func (s *MarketOverviewService) GetOverview(ctx context.Context, includeSectors bool) (domain.MarketOverview, error) {
	var ov domain.MarketOverview
	if raw, ok, _ := s.cache.Get(ctx, overviewKey); ok {
		if err := json.Unmarshal(raw, &ov); err == nil {
			observability.RecordCacheOp("overview", "hit")
			return s.withSectors(ctx, ov, includeSectors), nil
		}
	}
	observability.RecordCacheOp("overview", "miss")

	ov, err := s.assemble(ctx)
	if err != nil {
		return domain.MarketOverview{}, err
	}
	if ctx.Err() == nil {
		if blob, err := json.Marshal(ov); err == nil {
			_ = s.cache.SetEx(ctx, overviewKey, s.ttl, blob)
		}
	}
	return s.withSectors(ctx, ov, includeSectors), nil
}

// assemble fans out the headline, indices and trending fetches. Headlines are
// required; trending and indices are non-fatal and simply omitted on error.
func (s *MarketOverviewService) assemble(ctx context.Context) (domain.MarketOverview, error) {
	var (
		wg        sync.WaitGroup
		headlines []domain.NewsArticle
		headErr   error
		indices   []domain.MarketIndex
		trending  []domain.TrendingTicker
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		headlines, headErr = s.news.GetMarketNews(ctx, 20)
	}()
	go func() {
		defer wg.Done()
		data, err := s.market.Call(ctx, "get_market_indices", map[string]any{})
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("indices fetch failed; omitting", "error", err)
			return
		}
		if err := json.Unmarshal(data, &indices); err != nil {
			indices = nil
		}
	}()
	go func() {
		defer wg.Done()
		data, err := s.market.Call(ctx, "get_trending_tickers", map[string]any{"limit": 10})
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("trending fetch failed; omitting", "error", err)
			return
		}
		if err := json.Unmarshal(data, &trending); err != nil {
			trending = nil
		}
	}()
	wg.Wait()

	if headErr != nil {
		return domain.MarketOverview{}, headErr
	}
	for i := range headlines {
		if headlines[i].Sentiment == nil {
			sent := s.analyzer.Analyze(headlines[i].Headline + " " + headlines[i].Summary)
			headlines[i].Sentiment = &sent
		}
	}

	return domain.MarketOverview{
		Headlines:   headlines,
		Sentiment:   AggregateMarketSentiment(headlines, indices),
		Trending:    trending,
		Indices:     indices,
		LastUpdated: time.Now().UTC(),
	}, nil
}

func (s *MarketOverviewService) withSectors(ctx context.Context, ov domain.MarketOverview, include bool) domain.MarketOverview {
	ov.SectorHeatmap = nil
	if !include {
		return ov
	}
	sectors, err := s.GetSectorPerformance(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("sector heatmap fetch failed; omitting", "error", err)
		return ov
	}
	ov.SectorHeatmap = sectors
	return ov
}

// GetSectorPerformance fetches the sector heatmap. Never cached.
func (s *MarketOverviewService) GetSectorPerformance(ctx context.Context) ([]domain.SectorPerformance, error) {
	data, err := s.market.Call(ctx, "get_sector_performance", map[string]any{})
	if err != nil {
		return nil, domain.Unavailablef("sector performance fetch failed: %v", err)
	}
	var sectors []domain.SectorPerformance
	if err := json.Unmarshal(data, &sectors); err != nil {
		return nil, domain.ErrSchemaInvalid
	}
	return sectors, nil
}

// GetIndices fetches current market indices, bypassing the overview cache.
func (s *MarketOverviewService) GetIndices(ctx context.Context) ([]domain.MarketIndex, error) {
	data, err := s.market.Call(ctx, "get_market_indices", map[string]any{})
	if err != nil {
		return nil, domain.Unavailablef("indices fetch failed: %v", err)
	}
	var indices []domain.MarketIndex
	if err := json.Unmarshal(data, &indices); err != nil {
		return nil, domain.ErrSchemaInvalid
	}
	return indices, nil
}

// GetTrending fetches trending tickers.
func (s *MarketOverviewService) GetTrending(ctx context.Context, limit int) ([]domain.TrendingTicker, error) {
	if limit <= 0 {
		limit = 10
	}
	data, err := s.market.Call(ctx, "get_trending_tickers", map[string]any{"limit": limit})
	if err != nil {
		return nil, domain.Unavailablef("trending fetch failed: %v", err)
	}
	var trending []domain.TrendingTicker
	if err := json.Unmarshal(data, &trending); err != nil {
		return nil, domain.ErrSchemaInvalid
	}
	return trending, nil
}

// AggregateMarketSentiment computes the confidence-weighted mean sentiment of
// the articles and, when index data is available, adjusts it by market
// alignment: agreement between non-neutral news and market buckets boosts
// confidence and nudges the score toward the market; disagreement reduces
// confidence. The final label derives from the adjusted score.
func AggregateMarketSentiment(articles []domain.NewsArticle, indices []domain.MarketIndex) domain.Sentiment {
	var weighted, confSum float64
	n := 0
	for _, a := range articles {
		if a.Sentiment == nil {
			continue
		}
		weighted += a.Sentiment.Score * a.Sentiment.Confidence
		confSum += a.Sentiment.Confidence
		n++
	}
	if n == 0 || confSum == 0 {
		return domain.Sentiment{Label: "neutral", Score: 0, Confidence: 0}
	}
	score := weighted / confSum
	confidence := confSum / float64(n)

	if len(indices) > 0 {
		var pctSum float64
		for _, idx := range indices {
			pctSum += idx.ChangePercent
		}
		avgMarket := pctSum / float64(len(indices))

		newsBucket := domain.SentimentLabel(score)
		marketBucket := bucketPercent(avgMarket)
		switch {
		case newsBucket == marketBucket && newsBucket != "neutral":
			boost := math.Min(0.20, math.Min(math.Abs(score), math.Abs(avgMarket/100))*2)
			confidence = math.Min(1, confidence+boost)
			score = 0.85*score + 0.15*(avgMarket/100)
		case newsBucket != "neutral" && marketBucket != "neutral" && newsBucket != marketBucket:
			confidence = math.Max(0, confidence-math.Min(0.10, math.Abs(score)*0.5))
		}
	}

	return domain.Sentiment{
		Label:      domain.SentimentLabel(score),
		Score:      score,
		Confidence: confidence,
	}
}

// bucketPercent buckets an average index change percent with +-0.1 thresholds.
func bucketPercent(p float64) string {
	switch {
	case p > 0.1:
		return "positive"
	case p < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}
