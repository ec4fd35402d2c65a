package md

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"
)

type AlpacaSource struct {
	client  *marketdata.Client
	feed    marketdata.Feed
	limiter *rate.Limiter
}

// NewAlpacaSource builds a bar source on the Alpaca data API. An empty
// dataURL keeps the SDK default endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string, limiter *rate.Limiter) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   dataURL,
	})
	return &AlpacaSource{client: client, feed: ParseFeed(feed), limiter: limiter}
}

func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) ([]Bar, error) {
	timeFrame, err := TimeFrame(interval)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	end := time.Now().UTC()
	bars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: timeFrame,
		Start:     end.Add(-lookback),
		End:       end,
		Feed:      s.feed,
	})
	if err != nil {
		slog.Error("fetch bars failed", "symbol", symbol, "interval", interval, "error", err)
		return nil, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}

	out := make([]Bar, 0, len(bars))
	for _, bar := range bars {
		out = append(out, Bar{
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    int64(bar.Volume),
		})
	}
	slog.Debug("bars fetched", "symbol", symbol, "count", len(out))
	return out, nil
}

// TimeFrame maps a bar interval onto the coarsest Alpaca unit that divides it.
func TimeFrame(interval time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case interval <= 0 || interval%time.Minute != 0:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported bar interval: %s", interval)
	case interval%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(interval/(24*time.Hour)), marketdata.Day), nil
	case interval%time.Hour == 0:
		return marketdata.NewTimeFrame(int(interval/time.Hour), marketdata.Hour), nil
	default:
		return marketdata.NewTimeFrame(int(interval/time.Minute), marketdata.Min), nil
	}
}

func ParseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
