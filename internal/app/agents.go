package app

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/stock-intel/internal/usecase"
)

// RegisterBuiltinAgents installs the stock intelligence agents the workflow
// engine dispatches by name. Unknown names in a definition degrade to
// identity, so adding agents here is backward compatible.
func RegisterBuiltinAgents(engine *usecase.WorkflowEngine, stocks *usecase.StockDataService, news *usecase.NewsService, market *usecase.MarketOverviewService) {
	engine.RegisterAgent("market_overview", func(ctx context.Context, st *usecase.WorkflowState) (*usecase.WorkflowState, error) {
		ov, err := market.GetOverview(ctx, false)
		if err != nil {
			return nil, err
		}
		st.Results["market_overview"] = ov
		return st, nil
	})

	engine.RegisterAgent("price_snapshot", func(ctx context.Context, st *usecase.WorkflowState) (*usecase.WorkflowState, error) {
		tickers := contextTickers(st)
		if len(tickers) == 0 {
			return nil, fmt.Errorf("price_snapshot: no tickers in context")
		}
		quotes, err := stocks.GetBatchPrices(ctx, tickers)
		if err != nil {
			return nil, err
		}
		st.Results["prices"] = quotes
		return st, nil
	})

	engine.RegisterAgent("stock_news", func(ctx context.Context, st *usecase.WorkflowState) (*usecase.WorkflowState, error) {
		tickers := contextTickers(st)
		if len(tickers) == 0 {
			return nil, fmt.Errorf("stock_news: no tickers in context")
		}
		byTicker := make(map[string]any, len(tickers))
		for _, t := range tickers {
			articles, err := news.GetStockNews(ctx, t, 10)
			if err != nil {
				return nil, err
			}
			byTicker[t] = articles
		}
		st.Results["news"] = byTicker
		return st, nil
	})

	engine.RegisterAgent("trending", func(ctx context.Context, st *usecase.WorkflowState) (*usecase.WorkflowState, error) {
		trending, err := market.GetTrending(ctx, 10)
		if err != nil {
			return nil, err
		}
		st.Results["trending"] = trending
		return st, nil
	})
}

func contextTickers(st *usecase.WorkflowState) []string {
	raw, ok := st.Context["tickers"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
