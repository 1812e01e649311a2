package swap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSellAmountFloorsAndCompounds(t *testing.T) {
	balance := decimal.NewFromInt(1001)
	first := SellAmount(balance, 50)
	assert.Equal(t, "500", first.String())

	left := balance.Sub(first)
	second := SellAmount(left, 50)
	assert.Equal(t, "250", second.String())

	assert.True(t, SellAmount(balance, 100).Equal(balance))
	assert.True(t, SellAmount(decimal.Zero, 100).IsZero())
}

func TestPaperWalletLifecycle(t *testing.T) {
	ctx := context.Background()
	w := NewPaperWallet(10, zap.NewNop())

	res, err := w.Buy(ctx, BuyRequest{Address: "a", Symbol: "DOG", Capital: 1, Price: 0.5})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Signature)
	assert.InDelta(t, 9, w.Cash(), 1e-9)

	held, err := w.GetBalance(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2000000", held.String())

	_, err = w.Sell(ctx, SellRequest{Address: "a", Amount: SellAmount(held, 50), Price: 1})
	require.NoError(t, err)
	held, _ = w.GetBalance(ctx, "a")
	assert.Equal(t, "1000000", held.String())
	assert.InDelta(t, 10, w.Cash(), 1e-9)

	_, err = w.Sell(ctx, SellRequest{Address: "a", Amount: decimal.NewFromInt(5000000), Price: 1})
	assert.Error(t, err)

	_, err = w.Buy(ctx, BuyRequest{Address: "b", Capital: 100, Price: 1})
	assert.Error(t, err)
}

func TestGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		switch r.URL.Path {
		case "/buy":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.EqualValues(t, 100, body["slippage_bps"])
			_, _ = w.Write([]byte(`{"signature":"sig-buy"}`))
		case "/sell":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"route not found"}`))
		case "/balance/mint1":
			_, _ = w.Write([]byte(`{"amount":"12345"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewGateway(GatewayConfig{BaseURL: srv.URL, APIKey: "secret", SlippageBps: 100}, zap.NewNop())
	ctx := context.Background()

	res, err := g.Buy(ctx, BuyRequest{Address: "mint1", Capital: 0.1, Price: 1})
	require.NoError(t, err)
	assert.Equal(t, "sig-buy", res.Signature)

	_, err = g.Sell(ctx, SellRequest{Address: "mint1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route not found")

	bal, err := g.GetBalance(ctx, "mint1")
	require.NoError(t, err)
	assert.Equal(t, "12345", bal.String())

	_, err = g.GetBalance(ctx, "unknown")
	assert.ErrorIs(t, err, ErrBalanceUnavailable)
}
