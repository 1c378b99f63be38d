package internal

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nexusdex/internal/amm"
	"nexusdex/internal/api"
	"nexusdex/internal/bootstrap"
	"nexusdex/internal/config"
	"nexusdex/internal/metrics"
	"nexusdex/internal/persistence"
	"nexusdex/internal/pool"
	"nexusdex/internal/reconcile"
	"nexusdex/pkg/client"
)

var trader = common.HexToAddress("0x0000000000000000000000000000000000007777")

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.Persistence.SQLitePath = filepath.Join(t.TempDir(), "data", "nexusdex.db")
	return cfg
}

// TestSwapFlowIntegration runs a swap through the API client and checks the
// stream, the journal and a restart from the journal.
func TestSwapFlowIntegration(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := persistence.NewStore(cfg.Persistence.SQLitePath)
	require.NoError(t, err)
	defer store.Close()

	m := metrics.New()
	p, err := bootstrap.Run(ctx, cfg, bootstrap.Options{Store: store, Journal: true, Seed: true, Metrics: m})
	require.NoError(t, err)
	defer p.Manager.Close()
	require.True(t, p.Seeded)

	sellA, err := amm.ParseUnits("100", p.TokenA.Decimals())
	require.NoError(t, err)
	require.NoError(t, p.Fund(ctx, trader, sellA, nil))
	expectedOut, err := p.Manager.Quote(pool.SideA, sellA)
	require.NoError(t, err)

	srv := api.NewServer(api.Config{}, p.Manager, m)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	go srv.StreamUpdates(ctx)

	stream := client.NewStreamClient(ts.URL)
	require.NoError(t, stream.Connect(ctx))
	defer stream.Close()
	go stream.ReadMessages(ctx)

	first := <-stream.Messages()
	require.NotNil(t, first.State)
	require.Equal(t, uint64(1), first.State.Sequence)
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	c := client.NewHTTPClient(ts.URL)
	res, err := c.Swap(ctx, client.SwapRequest{
		Trader:       trader.Hex(),
		AssetIn:      p.TokenA.Symbol(),
		AmountIn:     sellA.Dec(),
		MinAmountOut: expectedOut.Dec(),
	})
	require.NoError(t, err)
	require.Equal(t, expectedOut.Dec(), res.AmountOut)
	require.Equal(t, uint64(2), res.Sequence)

	select {
	case msg := <-stream.Messages():
		require.NotNil(t, msg.Update)
		require.Equal(t, "swap", msg.Update.Kind)
		require.Equal(t, res.ReserveA, msg.Update.ReserveA)
		require.Equal(t, res.ReserveB, msg.Update.ReserveB)
	case <-ctx.Done():
		t.Fatal("no swap update received")
	}

	bal, err := c.Balance(ctx, trader.Hex(), "B")
	require.NoError(t, err)
	require.Equal(t, expectedOut.Dec(), bal.Balance)

	rec := reconcile.NewReconciler(p.Manager, store, m)
	replay, err := rec.Replay(ctx)
	require.NoError(t, err)
	require.True(t, replay.Consistent)
	require.Equal(t, uint64(2), replay.LastSequence)

	custody, err := rec.CheckCustody(ctx)
	require.NoError(t, err)
	require.True(t, custody.Healthy())

	// A restart picks the pool up from the journal instead of seeding again.
	restarted, err := bootstrap.Run(ctx, cfg, bootstrap.Options{Store: store, Journal: true, Seed: true})
	require.NoError(t, err)
	defer restarted.Manager.Close()

	require.True(t, restarted.Restored)
	require.False(t, restarted.Seeded)
	require.Equal(t, uint64(2), restarted.Manager.Sequence())
	require.Equal(t, res.ReserveA, restarted.Manager.Reserves().A.Dec())
	require.Equal(t, res.ReserveB, restarted.Manager.Reserves().B.Dec())

	custody, err = reconcile.NewReconciler(restarted.Manager, store, nil).CheckCustody(ctx)
	require.NoError(t, err)
	require.True(t, custody.Healthy())
	require.Zero(t, custody.SurplusA.Sign())
}

// TestRejectedSwapLeavesJournalUntouched checks that a swap failing on
// slippage is neither committed nor journaled.
func TestRejectedSwapLeavesJournalUntouched(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	store, err := persistence.NewStore(cfg.Persistence.SQLitePath)
	require.NoError(t, err)
	defer store.Close()

	p, err := bootstrap.Run(ctx, cfg, bootstrap.Options{Store: store, Journal: true, Seed: true})
	require.NoError(t, err)
	defer p.Manager.Close()

	before, err := store.EventCount(ctx, p.Manager.Address())
	require.NoError(t, err)
	require.Equal(t, 2, before)

	sellB := uint256.NewInt(1_000_000)
	require.NoError(t, p.Fund(ctx, trader, nil, sellB))
	quote, err := p.Manager.Quote(pool.SideB, sellB)
	require.NoError(t, err)

	_, err = p.Manager.Swap(ctx, pool.SwapRequest{
		Side:         pool.SideB,
		AmountIn:     sellB,
		MinAmountOut: new(uint256.Int).AddUint64(quote, 1),
	}, trader)
	require.ErrorIs(t, err, pool.ErrSlippage)

	after, err := store.EventCount(ctx, p.Manager.Address())
	require.NoError(t, err)
	require.Equal(t, before, after)

	balance, err := p.TokenB.BalanceOf(ctx, trader)
	require.NoError(t, err)
	require.True(t, balance.Eq(sellB))
}
