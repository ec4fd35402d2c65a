package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"emabot/internal/md"
)

type LiveOptions struct {
	APIKey      string
	APISecret   string
	BaseURL     string
	DataURL     string
	Feed        string
	OrderType   string
	TimeInForce string
	Limiter     *rate.Limiter
}

// LiveVenue routes orders to Alpaca. Every REST call waits on the shared
// limiter first.
type LiveVenue struct {
	client      *alpaca.Client
	data        *marketdata.Client
	feed        marketdata.Feed
	orderType   alpaca.OrderType
	timeInForce alpaca.TimeInForce
	limiter     *rate.Limiter
}

func NewLiveVenue(opts LiveOptions) (*LiveVenue, error) {
	orderType, err := parseOrderType(opts.OrderType)
	if err != nil {
		return nil, err
	}
	tif, err := parseTimeInForce(opts.TimeInForce)
	if err != nil {
		return nil, err
	}
	return &LiveVenue{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.BaseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    opts.APIKey,
			APISecret: opts.APISecret,
			BaseURL:   opts.DataURL,
		}),
		feed:        md.ParseFeed(opts.Feed),
		orderType:   orderType,
		timeInForce: tif,
		limiter:     opts.Limiter,
	}, nil
}

func (v *LiveVenue) wait(ctx context.Context) error {
	if v.limiter == nil {
		return ctx.Err()
	}
	return v.limiter.Wait(ctx)
}

func (v *LiveVenue) Submit(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := v.wait(ctx); err != nil {
		return OrderRef{}, err
	}
	side := alpaca.Buy
	if req.Side == Sell {
		side = alpaca.Sell
	}
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          side,
		Type:          v.orderType,
		TimeInForce:   v.timeInForce,
		ClientOrderID: req.ClientOrderID,
	}
	if v.orderType == alpaca.Limit {
		if req.LimitPrice == nil {
			return OrderRef{}, fmt.Errorf("limit order for %s without limit price", req.Symbol)
		}
		limitPrice := decimal.NewFromFloat(*req.LimitPrice).Round(2)
		orderReq.LimitPrice = &limitPrice
	}

	order, err := v.client.PlaceOrder(orderReq)
	if err != nil {
		slog.Error("place order failed", "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", v.orderType, "error", err)
		return OrderRef{}, err
	}

	slog.Info("place order success", "order_id", order.ID, "side", req.Side, "symbol", req.Symbol, "qty", req.Qty, "type", v.orderType, "status", order.Status)
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
	}, nil
}

func (v *LiveVenue) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := v.wait(ctx); err != nil {
		return 0, err
	}
	trade, err := v.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: v.feed})
	if err != nil {
		slog.Error("fetch last price failed", "symbol", symbol, "error", err)
		return 0, fmt.Errorf("last price %s: %w", symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return 0, fmt.Errorf("last price %s: %w", symbol, ErrNoPrice)
	}
	return trade.Price, nil
}

func (v *LiveVenue) Positions(ctx context.Context) ([]Position, error) {
	if err := v.wait(ctx); err != nil {
		return nil, err
	}
	positions, err := v.client.GetPositions()
	if err != nil {
		slog.Error("fetch positions failed", "error", err)
		return nil, err
	}
	out := make([]Position, 0, len(positions))
	for _, pos := range positions {
		avgEntry, _ := pos.AvgEntryPrice.Float64()
		out = append(out, Position{
			Symbol:   pos.Symbol,
			Qty:      int(pos.Qty.IntPart()),
			AvgEntry: avgEntry,
		})
	}
	slog.Info("positions fetched", "count", len(out))
	return out, nil
}

func (v *LiveVenue) Account(ctx context.Context) (Account, error) {
	if err := v.wait(ctx); err != nil {
		return Account{}, err
	}
	acct, err := v.client.GetAccount()
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return Account{}, err
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	slog.Info("account fetched", "equity", equity, "buying_power", buyingPower)
	return Account{Equity: equity, BuyingPower: buyingPower}, nil
}

func parseOrderType(value string) (alpaca.OrderType, error) {
	switch value {
	case "market", "":
		return alpaca.Market, nil
	case "limit":
		return alpaca.Limit, nil
	default:
		return "", fmt.Errorf("unsupported order type: %s", value)
	}
}

func parseTimeInForce(value string) (alpaca.TimeInForce, error) {
	switch value {
	case "day", "":
		return alpaca.Day, nil
	case "gtc":
		return alpaca.GTC, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}
