package cart

import (
	"fmt"
	"unicode/utf8"

	"buffcart/internal/catalog"

	"github.com/shopspring/decimal"
)

type State int

const (
	Loading State = iota
	Priced
	Errored
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Priced:
		return "priced"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "loading":
		*s = Loading
	case "priced":
		*s = Priced
	case "errored":
		*s = Errored
	default:
		return fmt.Errorf("unknown pricing state %q", text)
	}
	return nil
}

const displayReasonLength = 25

// Entry is one line of the cart.
type Entry struct {
	Identity    catalog.Identity `json:"identity"`
	DisplayName string           `json:"name"`
	Quantity    int              `json:"quantity"`
	// Price is the unit price in USD, it is only set when State is Priced.
	Price  *decimal.Decimal `json:"price,omitempty"`
	State  State            `json:"state"`
	Reason string           `json:"reason,omitempty"`
}

// Subtotal is the entry's contribution to the raw total, zero unless it is priced.
func (e Entry) Subtotal() decimal.Decimal {
	if e.State != Priced || e.Price == nil {
		return decimal.Zero
	}
	return e.Price.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// DisplayReason is the error reason shortened for display.
func (e Entry) DisplayReason() string {
	return truncate(e.Reason, displayReasonLength)
}

func truncate(text string, length int) string {
	if utf8.RuneCountInString(text) <= length {
		return text
	}
	return string([]rune(text)[:length]) + "..."
}
