package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/stock-intel/internal/domain"
	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

func overviewFixture(t *testing.T, marketHandler func(tool string, params map[string]any) (json.RawMessage, error)) (*usecase.MarketOverviewService, *fakeInvoker) {
	t.Helper()
	store, _ := newCacheStore(t)
	newsInv := newFakeInvoker(func(string, map[string]any) (json.RawMessage, error) {
		return json.RawMessage(`[{"id":"1","headline":"Markets rally on strong earnings"}]`), nil
	})
	analyzer := usecase.NewKeywordAnalyzer()
	news := usecase.NewNewsService(store, newsInv, analyzer, 15*time.Minute)
	marketInv := newFakeInvoker(marketHandler)
	return usecase.NewMarketOverviewService(store, marketInv, news, analyzer, 15*time.Minute), marketInv
}

func happyMarketHandler(tool string, _ map[string]any) (json.RawMessage, error) {
	switch tool {
	case "get_market_indices":
		return json.RawMessage(`[{"name":"S&P 500","symbol":"^GSPC","value":5000,"change":25,"change_percent":0.5}]`), nil
	case "get_trending_tickers":
		return json.RawMessage(`[{"ticker":"NVDA","company_name":"NVIDIA","news_count":12}]`), nil
	case "get_sector_performance":
		return json.RawMessage(`[{"sector":"Technology","change_percent":1.2,"top_performers":["NVDA"],"bottom_performers":["INTC"]}]`), nil
	}
	return nil, errors.New("unexpected tool " + tool)
}

func TestGetOverview_AssemblesAndCaches(t *testing.T) {
	svc, marketInv := overviewFixture(t, happyMarketHandler)
	ctx := context.Background()

	ov, err := svc.GetOverview(ctx, false)
	require.NoError(t, err)
	require.Len(t, ov.Headlines, 1)
	require.NotNil(t, ov.Headlines[0].Sentiment)
	require.Len(t, ov.Indices, 1)
	require.Len(t, ov.Trending, 1)
	assert.Nil(t, ov.SectorHeatmap)
	assert.False(t, ov.LastUpdated.IsZero())

	// Second read is served from cache; no further market tool traffic.
	_, err = svc.GetOverview(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, marketInv.callCount("get_market_indices"))
	assert.Equal(t, 1, marketInv.callCount("get_trending_tickers"))
}

func TestGetOverview_SectorsFetchedFreshEvenOnCacheHit(t *testing.T) {
	svc, marketInv := overviewFixture(t, happyMarketHandler)
	ctx := context.Background()

	ov, err := svc.GetOverview(ctx, true)
	require.NoError(t, err)
	require.Len(t, ov.SectorHeatmap, 1)

	ov, err = svc.GetOverview(ctx, true)
	require.NoError(t, err)
	require.Len(t, ov.SectorHeatmap, 1)
	// The heatmap is refetched on every request with sectors enabled.
	assert.Equal(t, 2, marketInv.callCount("get_sector_performance"))
	assert.Equal(t, 1, marketInv.callCount("get_market_indices"))
}

func TestGetOverview_TrendingAndIndicesFailuresAreNonFatal(t *testing.T) {
	svc, _ := overviewFixture(t, func(tool string, _ map[string]any) (json.RawMessage, error) {
		return nil, errors.New("market tools down")
	})

	ov, err := svc.GetOverview(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, ov.Headlines, 1)
	assert.Empty(t, ov.Indices)
	assert.Empty(t, ov.Trending)
}

func TestGetOverview_SectorFailureOmitsHeatmap(t *testing.T) {
	svc, _ := overviewFixture(t, func(tool string, params map[string]any) (json.RawMessage, error) {
		if tool == "get_sector_performance" {
			return nil, errors.New("down")
		}
		return happyMarketHandler(tool, params)
	})

	ov, err := svc.GetOverview(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, ov.SectorHeatmap)
}

func TestGetTrending_DefaultLimit(t *testing.T) {
	svc, _ := overviewFixture(t, func(tool string, params map[string]any) (json.RawMessage, error) {
		require.Equal(t, 10, params["limit"])
		return json.RawMessage(`[{"ticker":"NVDA","company_name":"NVIDIA"}]`), nil
	})
	trending, err := svc.GetTrending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trending, 1)
}

func sentimentArticle(score, confidence float64) domain.NewsArticle {
	return domain.NewsArticle{
		Headline:  "x",
		Sentiment: &domain.Sentiment{Label: domain.SentimentLabel(score), Score: score, Confidence: confidence},
	}
}

func TestAggregateMarketSentiment_NoArticles(t *testing.T) {
	s := usecase.AggregateMarketSentiment(nil, nil)
	assert.Equal(t, "neutral", s.Label)
	assert.Zero(t, s.Score)
	assert.Zero(t, s.Confidence)
}

func TestAggregateMarketSentiment_WeightedMean(t *testing.T) {
	articles := []domain.NewsArticle{
		sentimentArticle(0.8, 0.9),
		sentimentArticle(-0.2, 0.3),
		{Headline: "no sentiment attached"},
	}
	s := usecase.AggregateMarketSentiment(articles, nil)
	// (0.8*0.9 - 0.2*0.3) / (0.9+0.3) = 0.55
	assert.InDelta(t, 0.55, s.Score, 1e-9)
	assert.InDelta(t, 0.6, s.Confidence, 1e-9)
	assert.Equal(t, "positive", s.Label)
}

func TestAggregateMarketSentiment_AgreementBoostsConfidence(t *testing.T) {
	articles := []domain.NewsArticle{sentimentArticle(0.5, 0.6)}
	indices := []domain.MarketIndex{{ChangePercent: 1.0}}

	s := usecase.AggregateMarketSentiment(articles, indices)
	// boost = min(0.20, min(0.5, 0.01)*2) = 0.02
	assert.InDelta(t, 0.62, s.Confidence, 1e-9)
	// score = 0.85*0.5 + 0.15*0.01
	assert.InDelta(t, 0.4265, s.Score, 1e-9)
	assert.Equal(t, "positive", s.Label)
}

func TestAggregateMarketSentiment_DisagreementPenalizesConfidence(t *testing.T) {
	articles := []domain.NewsArticle{sentimentArticle(0.5, 0.6)}
	indices := []domain.MarketIndex{{ChangePercent: -2.0}}

	s := usecase.AggregateMarketSentiment(articles, indices)
	// penalty = min(0.10, 0.5*0.5) = 0.10, score untouched
	assert.InDelta(t, 0.5, s.Confidence, 1e-9)
	assert.InDelta(t, 0.5, s.Score, 1e-9)
}

func TestAggregateMarketSentiment_NeutralMarketLeavesScoreAlone(t *testing.T) {
	articles := []domain.NewsArticle{sentimentArticle(0.5, 0.6)}
	indices := []domain.MarketIndex{{ChangePercent: 0.05}}

	s := usecase.AggregateMarketSentiment(articles, indices)
	assert.InDelta(t, 0.5, s.Score, 1e-9)
	assert.InDelta(t, 0.6, s.Confidence, 1e-9)
}
