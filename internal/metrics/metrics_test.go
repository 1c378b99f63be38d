package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordSwap("A", "ok", time.Millisecond)
	m.RecordSwap("A", "ok", time.Millisecond)
	m.RecordSwap("B", "slippage", time.Millisecond)
	m.RecordDeposit("ok", time.Millisecond)
	m.RecordRollback("swap", true)
	m.RecordRollback("swap", false)
	m.SetReserves(1100, 455)
	m.SetLastSequence(2)
	m.RecordUpdateDropped()
	m.SetStreamClients(3)
	m.RecordReconciliation(0, -5, false)
	m.RecordRateLimited("/swap")

	require.Equal(t, 2.0, testutil.ToFloat64(m.Swaps.WithLabelValues("A", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Swaps.WithLabelValues("B", "slippage")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Deposits.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Rollbacks.WithLabelValues("swap", "failed")))
	require.Equal(t, 1100.0, testutil.ToFloat64(m.Reserve.WithLabelValues("A")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.LastSequence))
	require.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesDropped))
	require.Equal(t, 3.0, testutil.ToFloat64(m.StreamClients))
	require.Equal(t, -5.0, testutil.ToFloat64(m.CustodySurplus.WithLabelValues("B")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("deficit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited.WithLabelValues("/swap")))
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordUpdateDropped()

	require.Equal(t, 1.0, testutil.ToFloat64(a.UpdatesDropped))
	require.Equal(t, 0.0, testutil.ToFloat64(b.UpdatesDropped))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetReserves(1000, 500)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `dex_reserve{side="A"} 1000`), body)
}
