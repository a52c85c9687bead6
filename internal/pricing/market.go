package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"buffcart/internal/catalog"
	"buffcart/internal/credentials"
	"buffcart/internal/fetch"

	"github.com/shopspring/decimal"
)

const (
	DefaultMarketURL = "https://buff.163.com/api/market/goods/sell_order"
	marketGame       = "csgo"
	marketPage       = "1"
	marketAccept     = "application/json, text/javascript, */*; q=0.01"
)

var (
	// ErrIdentityMissing is returned for identities without a usable goods id.
	ErrIdentityMissing = errors.New("missing goods id")
	// ErrCredentialMissing is returned when there is no stored session cookie.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrEmptyOrderBook is returned when an item has no sell orders, it is not a fault.
	ErrEmptyOrderBook = errors.New("no sell orders")
	// ErrPriceUnavailable is returned when no sell order carries a parseable price.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// APIError is a failure reported by the marketplace in the body of a successful response.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return "Buff API: " + e.Message
	}
	return "Buff API: " + e.Code
}

// IsSessionError reports whether the marketplace rejected the session.
func (e *APIError) IsSessionError() bool {
	text := strings.ToLower(e.Code + " " + e.Message)
	return strings.Contains(text, "login") || strings.Contains(text, "session")
}

// sellOrderRequest builds the sell order lookup for one identity.
func sellOrderRequest(baseURL string, id catalog.Identity, cred credentials.Credential, userAgent string, now time.Time) fetch.Request {
	goodsID := strconv.FormatInt(id.BaseItemID, 10)

	query := url.Values{}
	query.Set("game", marketGame)
	query.Set("goods_id", goodsID)
	query.Set("page_num", marketPage)
	query.Set("sort_by", "price.asc")
	query.Set("allow_tradable_cooldown", "1")
	referer := "https://buff.163.com/goods/" + goodsID + "?game=" + marketGame
	if !id.IsBase() {
		tagID := strconv.FormatInt(id.VariantTagID, 10)
		query.Set("tag_ids", tagID)
		referer += "&tag_ids=" + tagID
	}
	// cache buster
	query.Set("_", strconv.FormatInt(now.UnixMilli(), 10))

	cookie := "session=" + cred.Token + ";"
	if cred.DeviceID != "" {
		cookie += " Device-Id=" + cred.DeviceID + ";"
	}
	cookie += " Locale-Supported=en; game=" + marketGame + ";"

	return fetch.Request{
		URL: baseURL + "?" + query.Encode(),
		Headers: map[string]string{
			"Accept":           marketAccept,
			"Referer":          referer,
			"User-Agent":       userAgent,
			"X-Requested-With": "XMLHttpRequest",
			"Cookie":           cookie,
		},
	}
}

type sellOrderResponse struct {
	Code  string  `json:"code"`
	Error *string `json:"error"`
	Data  *struct {
		Items []struct {
			Price json.RawMessage `json:"price"`
		} `json:"items"`
		TotalCount *int64 `json:"total_count"`
	} `json:"data"`
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		err := json.Unmarshal(raw, &text)
		if err != nil {
			return decimal.Decimal{}, false
		}
	}
	price, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil || !price.IsPositive() {
		return decimal.Decimal{}, false
	}
	return price, true
}

// lowestPrice extracts the cheapest sell order (CNY) from a sell order response.
// The minimum is taken over every order, the upstream sort order is not trusted.
// Orders without a parseable price are ignored.
func lowestPrice(body json.RawMessage) (decimal.Decimal, error) {
	var res sellOrderResponse
	err := json.Unmarshal(body, &res)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", fetch.ErrMalformedResponse, err)
	}

	if res.Code != "" && res.Code != "OK" && res.Code != "SUCCESS" {
		apiErr := &APIError{Code: res.Code}
		if res.Error != nil {
			apiErr.Message = *res.Error
		}
		return decimal.Decimal{}, apiErr
	}

	if res.Data == nil {
		return decimal.Decimal{}, fmt.Errorf("%w (Empty data structure)", ErrEmptyOrderBook)
	}
	if len(res.Data.Items) == 0 {
		if res.Data.TotalCount != nil {
			return decimal.Decimal{}, fmt.Errorf("%w (Count: %d)", ErrEmptyOrderBook, *res.Data.TotalCount)
		}
		return decimal.Decimal{}, ErrEmptyOrderBook
	}

	var lowest decimal.Decimal
	found := false
	for _, order := range res.Data.Items {
		price, ok := parsePrice(order.Price)
		if !ok {
			continue
		}
		if !found || price.LessThan(lowest) {
			lowest = price
			found = true
		}
	}
	if !found {
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	return lowest, nil
}
