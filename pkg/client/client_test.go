package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nexusdex/internal/amm"
	"nexusdex/internal/api"
	"nexusdex/internal/pool"
	"nexusdex/internal/token"
)

var (
	assetA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetB   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	provider = common.HexToAddress("0x0000000000000000000000000000000000000001")
	trader   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func newTestServer(t *testing.T) (*httptest.Server, *api.Server) {
	t.Helper()

	tokA := token.NewLedger(assetA, "NEXA", 18)
	tokB := token.NewLedger(assetB, "NEXB", 18)
	manager, err := pool.NewManager(pool.Config{Factory: common.HexToAddress("0xfa"), Fee: amm.DefaultFee}, tokA, tokB, nil)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	require.NoError(t, tokA.Mint(provider, uint256.NewInt(1000)))
	require.NoError(t, tokB.Mint(provider, uint256.NewInt(500)))
	require.NoError(t, tokA.Mint(trader, uint256.NewInt(100)))

	srv := api.NewServer(api.Config{}, manager, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, srv
}

func TestHTTPClientFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	c := NewHTTPClient(ts.URL + "/")
	ctx := context.Background()

	for _, asset := range []string{"A", "B"} {
		_, err := c.Approve(ctx, ApproveRequest{Owner: provider.Hex(), Asset: asset, Amount: "max"})
		require.NoError(t, err)
	}
	dep, err := c.Deposit(ctx, DepositRequest{Depositor: provider.Hex(), AmountA: "1000", AmountB: "500"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), dep.Sequence)

	state, err := c.Pool(ctx)
	require.NoError(t, err)
	require.Equal(t, "1000", state.AssetA.Reserve)
	require.Equal(t, "NEXB", state.AssetB.Symbol)
	require.Equal(t, "0.5", state.PriceA)

	q, err := c.Quote(ctx, "A", "100")
	require.NoError(t, err)
	require.Equal(t, "45", q.AmountOut)

	bal, err := c.Approve(ctx, ApproveRequest{Owner: trader.Hex(), Asset: "NEXA", Amount: "100"})
	require.NoError(t, err)
	require.Equal(t, "100", bal.Allowance)

	res, err := c.Swap(ctx, SwapRequest{Trader: trader.Hex(), AssetIn: assetA.Hex(), AmountIn: "100", MinAmountOut: "45"})
	require.NoError(t, err)
	require.Equal(t, "45", res.AmountOut)
	require.Equal(t, "1100", res.ReserveA)
	require.Equal(t, "455", res.ReserveB)

	bal, err = c.Balance(ctx, trader.Hex(), "B")
	require.NoError(t, err)
	require.Equal(t, "45", bal.Balance)
}

func TestHTTPClientAPIError(t *testing.T) {
	ts, _ := newTestServer(t)
	c := NewHTTPClient(ts.URL)

	_, err := c.Quote(context.Background(), "A", "100")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "insufficient_liquidity", apiErr.Code)
	require.NotEmpty(t, apiErr.Message)
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"address":"0xfa","assetA":{"symbol":"NEXA"},"sequence":3}`))
	require.NoError(t, err)
	require.NotNil(t, msg.State)
	require.Nil(t, msg.Update)
	require.Equal(t, uint64(3), msg.State.Sequence)

	msg, err = DecodeMessage([]byte(`{"pool":"0xfa","kind":"swap","sequence":4,"reserveA":"1100","reserveB":"455"}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Update)
	require.Equal(t, "swap", msg.Update.Kind)

	_, err = DecodeMessage([]byte(`{}`))
	require.Error(t, err)

	_, err = DecodeMessage([]byte(`not json`))
	require.Error(t, err)
}

func TestStreamClient(t *testing.T) {
	ts, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go srv.StreamUpdates(ctx)

	stream := NewStreamClient(ts.URL)
	require.NoError(t, stream.Connect(ctx))
	require.True(t, stream.IsConnected())

	readErr := make(chan error, 1)
	go func() { readErr <- stream.ReadMessages(ctx) }()

	first := <-stream.Messages()
	require.NotNil(t, first.State)
	require.Equal(t, uint64(0), first.State.Sequence)
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	c := NewHTTPClient(ts.URL)
	for _, asset := range []string{"A", "B"} {
		_, err := c.Approve(ctx, ApproveRequest{Owner: provider.Hex(), Asset: asset, Amount: "max"})
		require.NoError(t, err)
	}
	_, err := c.Deposit(ctx, DepositRequest{Depositor: provider.Hex(), AmountA: "1000", AmountB: "500"})
	require.NoError(t, err)

	select {
	case msg := <-stream.Messages():
		require.NotNil(t, msg.Update)
		require.Equal(t, "deposit", msg.Update.Kind)
		require.Equal(t, uint64(1), msg.Update.Sequence)
		require.Equal(t, "1000", msg.Update.ReserveA)
	case <-ctx.Done():
		t.Fatal("no update received")
	}

	require.NoError(t, stream.Ping())
	require.NoError(t, stream.Close())
	require.NoError(t, <-readErr)
	require.False(t, stream.IsConnected())
}
