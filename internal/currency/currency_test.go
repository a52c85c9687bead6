package currency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"buffcart/internal/components/telemetry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFrankfurterMemoizesSuccess(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"amount":1.0,"base":"CNY","date":"2025-05-30","rates":{"USD":0.13893}}`))
	}))
	defer srv.Close()

	provider := NewFrankfurter(srv.URL, &telemetry.Recorder{})
	ctx := context.Background()

	_, err := provider.Rate(ctx)
	require.ErrorIs(t, err, ErrRateUnavailable)

	rate, err := provider.Rate(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.13893", rate.String())

	_, err = provider.Rate(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestFrankfurterMissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rates":{"EUR":0.12}}`))
	}))
	defer srv.Close()

	_, err := NewFrankfurter(srv.URL, &telemetry.Recorder{}).Rate(context.Background())
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestConvertRoundsToCents(t *testing.T) {
	provider := Fixed(decimal.RequireFromString("0.13893"))
	usd, err := Convert(context.Background(), provider, decimal.RequireFromString("1234.5"))
	require.NoError(t, err)
	// 1234.5 * 0.13893 = 171.509085
	require.Equal(t, "171.51", usd.StringFixed(2))
}
