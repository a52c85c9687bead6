package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"buffcart/cmd/buffcart/globals"
	"buffcart/cmd/buffcart/utils"
	"buffcart/internal/cart"
	"buffcart/internal/catalog"
	"buffcart/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const settleTimeout = 2 * time.Minute

// start restores the saved state and loads the catalog.
func start(ctx context.Context) *globals.Value {
	value := globals.Get(ctx)
	err := value.Service.Start(ctx)
	if err != nil {
		serviceutil.Fatal("failed to start", err)
	}
	return value
}

// settle waits for every started price lookup to land in the cart.
func settle(ctx context.Context, value *globals.Value) {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	err := value.Service.Settle(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "some prices are still loading:", err)
	}
}

// printNotices writes the reauth banner and pending warnings to stderr.
func printNotices(value *globals.Value) {
	banner := value.Service.Banner()
	for _, warning := range banner.Warnings() {
		fmt.Fprintln(os.Stderr, text.FgYellow.Sprint("warning: "+warning))
	}
	if reason, required := banner.Reauth(); required {
		fmt.Fprintln(os.Stderr, text.FgRed.Sprint(reason))
	}
}

// resolveIdentity accepts an identity ("<goods id>_<tag id|base>") or a search query.
func resolveIdentity(value *globals.Value, arg string) (catalog.Identity, error) {
	id, err := catalog.ParseIdentity(arg)
	if err == nil {
		return id, nil
	}
	matches := value.Service.Search(arg, 1)
	if len(matches) == 0 {
		return catalog.Identity{}, fmt.Errorf("%q is neither an identity nor matches any item", arg)
	}
	return matches[0].Variant.Identity, nil
}

func formatPrice(e cart.Entry) string {
	switch e.State {
	case cart.Loading:
		return "Loading..."
	case cart.Errored:
		return text.FgRed.Sprint("Error (" + e.DisplayReason() + ")")
	}
	return "$" + e.Price.StringFixed(2)
}

func printCart(value *globals.Value, percent string) {
	entries := value.Service.Cart().Entries()
	totals := value.Service.Cart().Totals(percent)

	t := utils.NewTable()
	t.AppendHeader(table.Row{"Identity", "Item", "Qty", "Unit price", "Subtotal"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Identity.String(),
			e.DisplayName,
			e.Quantity,
			formatPrice(e),
			"$" + e.Subtotal().StringFixed(2),
		})
	}
	t.AppendFooter(table.Row{"", "Subtotal", "", "", "$" + totals.Raw.StringFixed(2)})
	t.AppendFooter(table.Row{"", fmt.Sprintf("Adjusted (%s%%)", totals.Percent.String()), "", "", "$" + totals.Adjusted.StringFixed(2)})
	t.Render()
	printNotices(value)
}
