package domain

import (
	"encoding/json"
	"time"
)

// Market data records decoded from downstream tool responses. Tool servers are
// inconsistent about field casing, so every decoder accepts both snake_case
// and camelCase aliases; our own JSON output is always snake_case.

// Quote is a current price snapshot for one ticker.
type Quote struct {
	Ticker        string    `json:"ticker"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// UnmarshalJSON accepts change_percent/changePercent and ISO-8601 timestamps.
func (q *Quote) UnmarshalJSON(b []byte) error {
	var raw struct {
		Ticker        string   `json:"ticker"`
		Price         float64  `json:"price"`
		Change        float64  `json:"change"`
		ChangePercent *float64 `json:"change_percent"`
		ChangePctAlt  *float64 `json:"changePercent"`
		Volume        int64    `json:"volume"`
		Timestamp     string   `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	q.Ticker = raw.Ticker
	q.Price = raw.Price
	q.Change = raw.Change
	q.ChangePercent = pickFloat(raw.ChangePercent, raw.ChangePctAlt)
	q.Volume = raw.Volume
	if raw.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return err
		}
		q.Timestamp = ts
	}
	return nil
}

// Candle is one bar of historical data. Date uses the ISO date form.
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// CompanyInfo describes a listed company.
type CompanyInfo struct {
	Ticker      string  `json:"ticker"`
	Name        string  `json:"name"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
	MarketCap   float64 `json:"market_cap"`
	Description string  `json:"description"`
}

func (c *CompanyInfo) UnmarshalJSON(b []byte) error {
	var raw struct {
		Ticker       string   `json:"ticker"`
		Name         string   `json:"name"`
		Sector       string   `json:"sector"`
		Industry     string   `json:"industry"`
		MarketCap    *float64 `json:"market_cap"`
		MarketCapAlt *float64 `json:"marketCap"`
		Description  string   `json:"description"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = CompanyInfo{
		Ticker:      raw.Ticker,
		Name:        raw.Name,
		Sector:      raw.Sector,
		Industry:    raw.Industry,
		MarketCap:   pickFloat(raw.MarketCap, raw.MarketCapAlt),
		Description: raw.Description,
	}
	return nil
}

// FinancialMetrics carries key valuation figures.
type FinancialMetrics struct {
	Ticker          string  `json:"ticker"`
	PERatio         float64 `json:"pe_ratio"`
	EPS             float64 `json:"eps"`
	DividendYield   float64 `json:"dividend_yield"`
	Beta            float64 `json:"beta"`
	FiftyTwoWkHigh  float64 `json:"fifty_two_week_high"`
	FiftyTwoWkLow   float64 `json:"fifty_two_week_low"`
}

func (m *FinancialMetrics) UnmarshalJSON(b []byte) error {
	var raw struct {
		Ticker        string   `json:"ticker"`
		PERatio       *float64 `json:"pe_ratio"`
		PERatioAlt    *float64 `json:"peRatio"`
		EPS           float64  `json:"eps"`
		DivYield      *float64 `json:"dividend_yield"`
		DivYieldAlt   *float64 `json:"dividendYield"`
		Beta          float64  `json:"beta"`
		WkHigh        *float64 `json:"fifty_two_week_high"`
		WkHighAlt     *float64 `json:"fiftyTwoWeekHigh"`
		WkLow         *float64 `json:"fifty_two_week_low"`
		WkLowAlt      *float64 `json:"fiftyTwoWeekLow"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = FinancialMetrics{
		Ticker:         raw.Ticker,
		PERatio:        pickFloat(raw.PERatio, raw.PERatioAlt),
		EPS:            raw.EPS,
		DividendYield:  pickFloat(raw.DivYield, raw.DivYieldAlt),
		Beta:           raw.Beta,
		FiftyTwoWkHigh: pickFloat(raw.WkHigh, raw.WkHighAlt),
		FiftyTwoWkLow:  pickFloat(raw.WkLow, raw.WkLowAlt),
	}
	return nil
}

// SearchResult is one entry from stock search, annotated with relevance by the
// stock data service (exact ticker 3.0, ticker prefix 2.0, otherwise 1.0).
type SearchResult struct {
	Ticker         string  `json:"ticker"`
	CompanyName    string  `json:"company_name"`
	Exchange       string  `json:"exchange"`
	RelevanceScore float64 `json:"relevance_score"`
}

func (s *SearchResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		Ticker         string  `json:"ticker"`
		CompanyName    string  `json:"company_name"`
		CompanyNameAlt string  `json:"companyName"`
		Exchange       string  `json:"exchange"`
		RelevanceScore float64 `json:"relevance_score"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = SearchResult{
		Ticker:         raw.Ticker,
		CompanyName:    pickString(raw.CompanyName, raw.CompanyNameAlt),
		Exchange:       raw.Exchange,
		RelevanceScore: raw.RelevanceScore,
	}
	return nil
}

// Sentiment labels a text or an aggregate. Score is in [-1,1] and Confidence
// in [0,1]; Label is derived from Score via +-0.1 thresholds.
type Sentiment struct {
	Label      string  `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// SentimentLabel derives the bucket label for a score using the +-0.1 thresholds.
func SentimentLabel(score float64) string {
	switch {
	case score > 0.1:
		return "positive"
	case score < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}

// NewsArticle is one headline with optional attached sentiment.
type NewsArticle struct {
	ID          string     `json:"id"`
	Headline    string     `json:"headline"`
	Source      string     `json:"source"`
	URL         string     `json:"url"`
	PublishedAt string     `json:"published_at"`
	Summary     string     `json:"summary"`
	Sentiment   *Sentiment `json:"sentiment,omitempty"`
}

func (a *NewsArticle) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID             string     `json:"id"`
		Headline       string     `json:"headline"`
		Source         string     `json:"source"`
		URL            string     `json:"url"`
		PublishedAt    string     `json:"published_at"`
		PublishedAtAlt string     `json:"publishedAt"`
		Summary        string     `json:"summary"`
		Sentiment      *Sentiment `json:"sentiment"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = NewsArticle{
		ID:          raw.ID,
		Headline:    raw.Headline,
		Source:      raw.Source,
		URL:         raw.URL,
		PublishedAt: pickString(raw.PublishedAt, raw.PublishedAtAlt),
		Summary:     raw.Summary,
		Sentiment:   raw.Sentiment,
	}
	return nil
}

// MarketIndex is one market index snapshot.
type MarketIndex struct {
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

func (i *MarketIndex) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name          string   `json:"name"`
		Symbol        string   `json:"symbol"`
		Value         float64  `json:"value"`
		Change        float64  `json:"change"`
		ChangePercent *float64 `json:"change_percent"`
		ChangePctAlt  *float64 `json:"changePercent"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*i = MarketIndex{
		Name:          raw.Name,
		Symbol:        raw.Symbol,
		Value:         raw.Value,
		Change:        raw.Change,
		ChangePercent: pickFloat(raw.ChangePercent, raw.ChangePctAlt),
	}
	return nil
}

// TrendingTicker is one entry from the trending list.
type TrendingTicker struct {
	Ticker        string   `json:"ticker"`
	CompanyName   string   `json:"company_name"`
	NewsCount     int      `json:"news_count"`
	Reason        string   `json:"reason"`
	Price         *float64 `json:"price,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
	Volume        *int64   `json:"volume,omitempty"`
}

func (t *TrendingTicker) UnmarshalJSON(b []byte) error {
	var raw struct {
		Ticker         string   `json:"ticker"`
		CompanyName    string   `json:"company_name"`
		CompanyNameAlt string   `json:"companyName"`
		NewsCount      *int     `json:"news_count"`
		NewsCountAlt   *int     `json:"newsCount"`
		Reason         string   `json:"reason"`
		Price          *float64 `json:"price"`
		ChangePercent  *float64 `json:"change_percent"`
		ChangePctAlt   *float64 `json:"changePercent"`
		Volume         *int64   `json:"volume"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	nc := 0
	if raw.NewsCount != nil {
		nc = *raw.NewsCount
	} else if raw.NewsCountAlt != nil {
		nc = *raw.NewsCountAlt
	}
	cp := raw.ChangePercent
	if cp == nil {
		cp = raw.ChangePctAlt
	}
	*t = TrendingTicker{
		Ticker:        raw.Ticker,
		CompanyName:   pickString(raw.CompanyName, raw.CompanyNameAlt),
		NewsCount:     nc,
		Reason:        raw.Reason,
		Price:         raw.Price,
		ChangePercent: cp,
		Volume:        raw.Volume,
	}
	return nil
}

// SectorPerformance is one row of the sector heatmap.
type SectorPerformance struct {
	Sector           string   `json:"sector"`
	ChangePercent    float64  `json:"change_percent"`
	TopPerformers    []string `json:"top_performers"`
	BottomPerformers []string `json:"bottom_performers"`
}

// MarketOverview is the cached composite artifact. SectorHeatmap is never part
// of the cached payload; it is attached freshly when the caller asks for it.
type MarketOverview struct {
	Headlines     []NewsArticle       `json:"headlines"`
	Sentiment     Sentiment           `json:"sentiment"`
	Trending      []TrendingTicker    `json:"trending"`
	Indices       []MarketIndex       `json:"indices"`
	SectorHeatmap []SectorPerformance `json:"sector_heatmap,omitempty"`
	LastUpdated   time.Time           `json:"last_updated"`
}

func pickFloat(a, b *float64) float64 {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return 0
}

func pickString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
