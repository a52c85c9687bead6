package cart

import (
	"context"
	"errors"
	"testing"

	"buffcart/internal/catalog"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/kvstore"
	"buffcart/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newStore(t testing.TB) kvstore.Store {
	db, err := kvstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return kvstore.NewSQLStore(db)
}

var (
	redline = catalog.Variant{DisplayName: "AK-47 | Redline (Field-Tested)", Identity: catalog.Identity{BaseItemID: 1}}
	crown   = catalog.Variant{DisplayName: "Sticker | Crown (Foil)", Identity: catalog.Identity{BaseItemID: 2}}
	doppler = catalog.Variant{DisplayName: "★ Karambit | Doppler (Phase 2) (Factory New)", Identity: catalog.Identity{BaseItemID: 3, VariantTagID: 4}}
)

func priced(id catalog.Identity, usd string) pricing.Result {
	return pricing.Result{Identity: id, Price: decimal.RequireFromString(usd)}
}

func failed(id catalog.Identity, reason string) pricing.Result {
	return pricing.Result{Identity: id, Err: errors.New(reason)}
}

func filledCart(t testing.TB) *Cart {
	ctx := context.Background()
	c := New(newStore(t), &telemetry.Recorder{})

	_, created, err := c.Add(ctx, redline)
	require.NoError(t, err)
	require.True(t, created)
	entry, created, err := c.Add(ctx, redline)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 2, entry.Quantity)

	_, _, err = c.Add(ctx, crown)
	require.NoError(t, err)
	_, _, err = c.Add(ctx, doppler)
	require.NoError(t, err)

	for _, result := range []pricing.Result{
		priced(redline.Identity, "10"),
		priced(crown.Identity, "5"),
		failed(doppler.Identity, "no sell orders (Count: 0)"),
	} {
		applied, err := c.Apply(ctx, result)
		require.NoError(t, err)
		require.True(t, applied)
	}
	return c
}

func TestTotals(t *testing.T) {
	c := filledCart(t)

	totals := c.Totals("50")
	require.Equal(t, "25.00", totals.Raw.StringFixed(2))
	require.Equal(t, "12.50", totals.Adjusted.StringFixed(2))

	for _, input := range []string{"", "abc", "0", "-5", "100"} {
		totals = c.Totals(input)
		require.Equal(t, "25.00", totals.Adjusted.StringFixed(2), "percent input %q", input)
	}
	require.Equal(t, "37.50", c.Totals("150%").Adjusted.StringFixed(2))
}

func TestLoadingEntriesDoNotCount(t *testing.T) {
	ctx := context.Background()
	c := New(newStore(t), &telemetry.Recorder{})
	_, _, err := c.Add(ctx, redline)
	require.NoError(t, err)

	require.True(t, c.Totals("").Raw.IsZero())
	require.Equal(t, []catalog.Identity{redline.Identity}, c.Pending())
}

func TestQuantities(t *testing.T) {
	ctx := context.Background()
	c := filledCart(t)

	entry, err := c.Increment(ctx, crown.Identity)
	require.NoError(t, err)
	require.Equal(t, 2, entry.Quantity)

	entry, removed, err := c.Decrement(ctx, redline.Identity)
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, 1, entry.Quantity)

	_, removed, err = c.Decrement(ctx, redline.Identity)
	require.NoError(t, err)
	require.True(t, removed)
	_, found := c.Get(redline.Identity)
	require.False(t, found)

	_, err = c.Increment(ctx, redline.Identity)
	require.ErrorIs(t, err, ErrNotInCart)
	_, _, err = c.Decrement(ctx, redline.Identity)
	require.ErrorIs(t, err, ErrNotInCart)

	// late results for removed entries are dropped
	applied, err := c.Apply(ctx, priced(redline.Identity, "99"))
	require.NoError(t, err)
	require.False(t, applied)
	_, found = c.Get(redline.Identity)
	require.False(t, found)

	require.NoError(t, c.Clear(ctx))
	require.Empty(t, c.Entries())
}

func TestPendingAndMarkLoading(t *testing.T) {
	ctx := context.Background()
	c := filledCart(t)
	require.Equal(t, []catalog.Identity{doppler.Identity}, c.Pending())

	require.NoError(t, c.MarkLoading(ctx, doppler.Identity))
	entry, _ := c.Get(doppler.Identity)
	require.Equal(t, Loading, entry.State)
	require.Empty(t, entry.Reason)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(store, &telemetry.Recorder{})
	_, _, err := c.Add(ctx, redline)
	require.NoError(t, err)
	_, err = c.Apply(ctx, priced(redline.Identity, "10.5"))
	require.NoError(t, err)
	_, _, err = c.Add(ctx, doppler)
	require.NoError(t, err)

	restored := New(store, &telemetry.Recorder{})
	require.NoError(t, restored.Load(ctx))
	require.Equal(t, c.Entries(), restored.Entries())

	entry, _ := restored.Get(redline.Identity)
	require.Equal(t, Priced, entry.State)
	require.Equal(t, "10.5", entry.Price.String())

	require.NoError(t, c.Clear(ctx))
	require.NoError(t, restored.Load(ctx))
	require.Empty(t, restored.Entries())
}

func TestDisplayReason(t *testing.T) {
	entry := Entry{Reason: "network response was not ok (status 502, attempt 3)"}
	require.Equal(t, "network response was not ...", entry.DisplayReason())

	entry.Reason = "no sell orders"
	require.Equal(t, "no sell orders", entry.DisplayReason())
}

func TestExport(t *testing.T) {
	c := filledCart(t)

	expected := "AK-47 | Redline (Field-Tested) - $10.00\n" +
		"AK-47 | Redline (Field-Tested) - $10.00\n" +
		"Sticker | Crown (Foil) - $5.00\n" +
		"★ Karambit | Doppler (Phase 2) (Factory New) - Error (no sell orders (Coun...)\n" +
		"\n------------------------------------\n" +
		"Subtotal: $25.00\n" +
		"Percentage: 50%\n" +
		"Adjusted Total: $12.50"
	require.Equal(t, expected, c.Export("50"))
}
