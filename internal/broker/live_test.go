package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alpacaServer stands in for both the trading and the data API.
type alpacaServer struct {
	*httptest.Server
	orders []map[string]any
	feeds  []string
}

func newAlpacaServer(t *testing.T) *alpacaServer {
	t.Helper()
	s := &alpacaServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/orders", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.orders = append(s.orders, body)
		fmt.Fprintf(w, `{"id":"ord-%d","client_order_id":%q,"symbol":%q,"status":"accepted"}`,
			len(s.orders), body["client_order_id"], body["symbol"])
	})
	mux.HandleFunc("/v2/stocks/trades/latest", func(w http.ResponseWriter, r *http.Request) {
		s.feeds = append(s.feeds, r.URL.Query().Get("feed"))
		if r.URL.Query().Get("symbols") != "AAPL" {
			fmt.Fprint(w, `{"trades":{}}`)
			return
		}
		fmt.Fprint(w, `{"trades":{"AAPL":{"t":"2024-03-04T15:00:00Z","p":187.42,"s":100,"x":"V","i":1,"z":"C"}}}`)
	})
	mux.HandleFunc("/v2/positions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"symbol":"AAPL","qty":"12","avg_entry_price":"180.5"},{"symbol":"MSFT","qty":"3","avg_entry_price":"410"}]`)
	})
	mux.HandleFunc("/v2/account", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"acct","equity":"50123.45","buying_power":"100246.9"}`)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestVenue(t *testing.T, srv *alpacaServer, orderType, tif string) *LiveVenue {
	t.Helper()
	venue, err := NewLiveVenue(LiveOptions{
		APIKey:      "key",
		APISecret:   "secret",
		BaseURL:     srv.URL,
		DataURL:     srv.URL,
		Feed:        "sip",
		OrderType:   orderType,
		TimeInForce: tif,
	})
	require.NoError(t, err)
	return venue
}

func TestLiveVenueSubmitMarketOrder(t *testing.T) {
	srv := newAlpacaServer(t)
	venue := newTestVenue(t, srv, "market", "day")

	ref, err := venue.Submit(context.Background(), OrderRequest{Symbol: "AAPL", Qty: 10, Side: Sell, ClientOrderID: "run-7"})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ref.ID)
	assert.Equal(t, "run-7", ref.ClientOrderID)
	assert.True(t, ref.Confirmed())

	require.Len(t, srv.orders, 1)
	order := srv.orders[0]
	assert.Equal(t, "AAPL", order["symbol"])
	assert.Equal(t, "10", fmt.Sprint(order["qty"]))
	assert.Equal(t, "sell", order["side"])
	assert.Equal(t, "market", order["type"])
	assert.Equal(t, "day", order["time_in_force"])
	assert.Nil(t, order["limit_price"])
}

func TestLiveVenueSubmitLimitOrderRoundsPrice(t *testing.T) {
	srv := newAlpacaServer(t)
	venue := newTestVenue(t, srv, "limit", "gtc")
	price := 101.23789

	_, err := venue.Submit(context.Background(), OrderRequest{Symbol: "AAPL", Qty: 5, Side: Buy, LimitPrice: &price})
	require.NoError(t, err)

	require.Len(t, srv.orders, 1)
	order := srv.orders[0]
	assert.Equal(t, "buy", order["side"])
	assert.Equal(t, "limit", order["type"])
	assert.Equal(t, "gtc", order["time_in_force"])
	assert.Equal(t, "101.24", fmt.Sprint(order["limit_price"]))
}

func TestLiveVenueLimitOrderNeedsPrice(t *testing.T) {
	srv := newAlpacaServer(t)
	venue := newTestVenue(t, srv, "limit", "day")

	_, err := venue.Submit(context.Background(), OrderRequest{Symbol: "AAPL", Qty: 5, Side: Buy})
	require.Error(t, err)
	assert.Empty(t, srv.orders)
}

func TestLiveVenueRejectsUnknownOptions(t *testing.T) {
	_, err := NewLiveVenue(LiveOptions{OrderType: "stop", TimeInForce: "day"})
	require.Error(t, err)
	_, err = NewLiveVenue(LiveOptions{OrderType: "market", TimeInForce: "ioc"})
	require.Error(t, err)
}

func TestLiveVenueLastPrice(t *testing.T) {
	srv := newAlpacaServer(t)
	venue := newTestVenue(t, srv, "market", "day")

	price, err := venue.LastPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 187.42, price)
	assert.Equal(t, []string{"sip"}, srv.feeds)

	_, err = venue.LastPrice(context.Background(), "MSFT")
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestLiveVenuePositionsAndAccount(t *testing.T) {
	srv := newAlpacaServer(t)
	venue := newTestVenue(t, srv, "market", "day")

	positions, err := venue.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Position{
		{Symbol: "AAPL", Qty: 12, AvgEntry: 180.5},
		{Symbol: "MSFT", Qty: 3, AvgEntry: 410},
	}, positions)

	account, err := venue.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Account{Equity: 50123.45, BuyingPower: 100246.9}, account)
}

func TestLiveVenueSubmitAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"code":40310000,"message":"insufficient buying power"}`)
	}))
	defer srv.Close()
	venue, err := NewLiveVenue(LiveOptions{BaseURL: srv.URL, OrderType: "market", TimeInForce: "day"})
	require.NoError(t, err)

	_, err = venue.Submit(context.Background(), OrderRequest{Symbol: "AAPL", Qty: 1, Side: Buy})
	var apiErr *alpaca.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
