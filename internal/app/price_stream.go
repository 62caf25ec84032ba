package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

// QuoteSource is the batch price slice of the stock data service.
type QuoteSource interface {
	GetBatchPrices(ctx context.Context, tickers []string) (map[string]domain.Quote, error)
}

// QuoteSink receives fan-out quotes; the websocket registry implements it.
type QuoteSink interface {
	SubscribedTickers() []string
	BroadcastPriceUpdate(ticker string, q domain.Quote) int
}

// PriceStreamer periodically pushes fresh quotes for every subscribed ticker
// to live websocket clients.
type PriceStreamer struct {
	source   QuoteSource
	sink     QuoteSink
	interval time.Duration
}

// NewPriceStreamer builds a streamer. Zero interval selects 30s.
func NewPriceStreamer(source QuoteSource, sink QuoteSink, interval time.Duration) *PriceStreamer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PriceStreamer{source: source, sink: sink, interval: interval}
}

// Run pushes quotes on the configured interval until ctx is cancelled.
func (p *PriceStreamer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	slog.Info("price streamer started", slog.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			slog.Info("price streamer stopped")
			return
		case <-ticker.C:
			p.pushOnce(ctx)
		}
	}
}

func (p *PriceStreamer) pushOnce(ctx context.Context) {
	tickers := p.sink.SubscribedTickers()
	if len(tickers) == 0 {
		return
	}
	quotes, err := p.source.GetBatchPrices(ctx, tickers)
	if err != nil {
		slog.Warn("price stream fetch failed", slog.Any("error", err))
		return
	}
	for t, q := range quotes {
		p.sink.BroadcastPriceUpdate(t, q)
	}
}
