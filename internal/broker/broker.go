package broker

import (
	"context"
	"errors"
)

var ErrNoPrice = errors.New("no last price")

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderRequest struct {
	Symbol        string
	Qty           int
	Side          Side
	ClientOrderID string
	LimitPrice    *float64
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Status        string
}

type Position struct {
	Symbol   string
	Qty      int
	AvgEntry float64
}

type Account struct {
	Equity      float64
	BuyingPower float64
}

// Venue accepts orders and quotes last traded prices. A Submit that returns
// an error or an empty ID was not confirmed.
type Venue interface {
	Submit(ctx context.Context, req OrderRequest) (OrderRef, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Confirmed reports whether ref identifies an accepted order.
func (ref OrderRef) Confirmed() bool {
	return ref.ID != ""
}
