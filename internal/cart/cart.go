// Package cart keeps the shopping cart, its quantities and totals, and
// persists it after every change.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"buffcart/internal/catalog"
	"buffcart/internal/components/assert"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/kvstore"
	"buffcart/internal/pricing"

	"github.com/shopspring/decimal"
)

const report_cart_persist = "cart.persist"

// StoreKey is the durable store key of the saved cart.
const StoreKey = "savedItems"

var ErrNotInCart = errors.New("item is not in the cart")

var hundred = decimal.NewFromInt(100)

type Totals struct {
	// Raw is the sum of every priced entry's subtotal.
	Raw decimal.Decimal
	// Percent is the factor the adjusted total is scaled by.
	Percent  decimal.Decimal
	Adjusted decimal.Decimal
}

// Cart is safe for concurrent use, every mutation is persisted before it returns.
type Cart struct {
	store kvstore.Store
	tel   telemetry.API

	mu      sync.Mutex
	entries []Entry
}

func New(store kvstore.Store, tel telemetry.API) *Cart {
	assert.NotNil(store)
	assert.NotNil(tel)
	return &Cart{
		store: store,
		tel:   telemetry.NewScopedAPI("cart", tel),
	}
}

// Load replaces the cart with the saved one, entries with a quantity below 1 are dropped.
func (c *Cart) Load(ctx context.Context) error {
	saved, _, err := kvstore.GetJSON[[]Entry](ctx, c.store, StoreKey)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	entries := make([]Entry, 0, len(saved))
	for _, e := range saved {
		if e.Quantity < 1 {
			continue
		}
		if e.State == Priced && e.Price == nil {
			e.State = Loading
		}
		entries = append(entries, e)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	return nil
}

// persist must be called with mu held.
func (c *Cart) persist(ctx context.Context) error {
	entries := c.entries
	if entries == nil {
		entries = []Entry{}
	}
	err := kvstore.SetJSON(ctx, c.store, map[string]any{StoreKey: entries})
	if err != nil {
		c.tel.ReportBroken(report_cart_persist, err)
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (c *Cart) indexOf(id catalog.Identity) int {
	for i, e := range c.entries {
		if e.Identity == id {
			return i
		}
	}
	return -1
}

// Add adds one unit of variant. A new entry starts Loading, an existing
// entry's quantity is incremented instead. created reports which happened.
func (c *Cart) Add(ctx context.Context, variant catalog.Variant) (entry Entry, created bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(variant.Identity)
	if idx >= 0 {
		c.entries[idx].Quantity++
		entry = c.entries[idx]
	} else {
		entry = Entry{
			Identity:    variant.Identity,
			DisplayName: variant.DisplayName,
			Quantity:    1,
			State:       Loading,
		}
		c.entries = append(c.entries, entry)
		created = true
	}
	return entry, created, c.persist(ctx)
}

func (c *Cart) Increment(ctx context.Context, id catalog.Identity) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return Entry{}, ErrNotInCart
	}
	c.entries[idx].Quantity++
	return c.entries[idx], c.persist(ctx)
}

// Decrement removes one unit, the entry is removed when its quantity would drop below 1.
func (c *Cart) Decrement(ctx context.Context, id catalog.Identity) (entry Entry, removed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return Entry{}, false, ErrNotInCart
	}
	if c.entries[idx].Quantity > 1 {
		c.entries[idx].Quantity--
		return c.entries[idx], false, c.persist(ctx)
	}
	entry = c.entries[idx]
	entry.Quantity = 0
	c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
	return entry, true, c.persist(ctx)
}

func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	return c.persist(ctx)
}

// MarkLoading puts an entry back into Loading before its price is looked up again.
func (c *Cart) MarkLoading(ctx context.Context, id catalog.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(id)
	if idx < 0 {
		return ErrNotInCart
	}
	c.entries[idx].State = Loading
	c.entries[idx].Price = nil
	c.entries[idx].Reason = ""
	return c.persist(ctx)
}

// Apply stores the result of a price lookup. Results for entries that are no
// longer in the cart are ignored, applied reports whether the entry existed.
func (c *Cart) Apply(ctx context.Context, result pricing.Result) (applied bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(result.Identity)
	if idx < 0 {
		return false, nil
	}
	entry := &c.entries[idx]
	if result.Priced() {
		price := result.Price
		entry.Price = &price
		entry.State = Priced
		entry.Reason = ""
	} else {
		entry.Price = nil
		entry.State = Errored
		entry.Reason = result.Err.Error()
	}
	return true, c.persist(ctx)
}

// Entries returns a copy of the cart in insertion order.
func (c *Cart) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Cart) Get(id catalog.Identity) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(id)
	if idx < 0 {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// Pending returns the identities of entries that are Loading or Errored.
func (c *Cart) Pending() []catalog.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []catalog.Identity
	for _, e := range c.entries {
		if e.State != Priced {
			out = append(out, e.Identity)
		}
	}
	return out
}

// ParsePercent parses the user supplied percentage, empty, non-numeric and
// non-positive input means 100.
func ParsePercent(input string) decimal.Decimal {
	input = strings.TrimSuffix(strings.TrimSpace(input), "%")
	percent, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || !percent.IsPositive() {
		return hundred
	}
	return percent
}

func computeTotals(entries []Entry, percentInput string) Totals {
	raw := decimal.Zero
	for _, e := range entries {
		raw = raw.Add(e.Subtotal())
	}
	percent := ParsePercent(percentInput)
	return Totals{
		Raw:      raw,
		Percent:  percent,
		Adjusted: raw.Mul(percent).Div(hundred),
	}
}

// Totals only counts Priced entries.
func (c *Cart) Totals(percentInput string) Totals {
	return computeTotals(c.Entries(), percentInput)
}

// Export renders the cart as plain text, one line per unit followed by the totals.
func (c *Cart) Export(percentInput string) string {
	entries := c.Entries()
	totals := computeTotals(entries, percentInput)

	var b strings.Builder
	for _, e := range entries {
		var price string
		switch e.State {
		case Loading:
			price = "Loading..."
		case Errored:
			price = "Error (" + truncate(e.Reason, 20) + ")"
		default:
			price = "$" + e.Price.StringFixed(2)
		}
		for i := 0; i < e.Quantity; i++ {
			fmt.Fprintf(&b, "%s - %s\n", e.DisplayName, price)
		}
	}
	b.WriteString("\n------------------------------------\n")
	fmt.Fprintf(&b, "Subtotal: $%s\n", totals.Raw.StringFixed(2))
	fmt.Fprintf(&b, "Percentage: %s%%\n", totals.Percent.String())
	fmt.Fprintf(&b, "Adjusted Total: $%s", totals.Adjusted.StringFixed(2))
	return b.String()
}
