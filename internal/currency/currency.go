// Package currency converts marketplace prices (CNY) to USD.
package currency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"buffcart/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const report_frankfurter_rate = "frankfurter.rate"

const DefaultRateURL = "https://api.frankfurter.app/latest?from=CNY&to=USD"

var ErrRateUnavailable = errors.New("rate unavailable")

// Provider returns the CNY to USD rate.
//
// note: fault injection point
type Provider interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// Convert converts a CNY amount to USD rounded to cents.
func Convert(ctx context.Context, provider Provider, cny decimal.Decimal) (decimal.Decimal, error) {
	rate, err := provider.Rate(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return cny.Mul(rate).Round(2), nil
}

// Frankfurter fetches the rate from the frankfurter.app api. The first
// successful rate is kept for the lifetime of the process, failures are not cached.
type Frankfurter struct {
	client *resty.Client
	url    string
	tel    telemetry.API

	mu   sync.Mutex
	rate *decimal.Decimal
}

func NewFrankfurter(url string, tel telemetry.API) *Frankfurter {
	tel = telemetry.NewScopedAPI("currency", tel)

	client := resty.New()
	client.SetTimeout(15 * time.Second)
	telemetry.InstrumentResty(client, "buffcart/currency", tel)

	return &Frankfurter{
		client: client,
		url:    url,
		tel:    tel,
	}
}

type frankfurterResponse struct {
	Rates struct {
		USD *decimal.Decimal `json:"USD"`
	} `json:"rates"`
}

func (f *Frankfurter) Rate(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rate != nil {
		return *f.rate, nil
	}

	var payload frankfurterResponse
	res, err := f.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(f.url)
	if err != nil {
		f.tel.ReportWarning(report_frankfurter_rate, err)
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrRateUnavailable, err)
	}
	if !res.IsSuccess() {
		err = fmt.Errorf("%w: status %d", ErrRateUnavailable, res.StatusCode())
		f.tel.ReportWarning(report_frankfurter_rate, err)
		return decimal.Decimal{}, err
	}
	if payload.Rates.USD == nil || !payload.Rates.USD.IsPositive() {
		err = fmt.Errorf("%w: response has no usable rates.USD", ErrRateUnavailable)
		f.tel.ReportWarning(report_frankfurter_rate, err)
		return decimal.Decimal{}, err
	}

	f.rate = payload.Rates.USD
	f.tel.ReportDebug("fetched exchange rate", f.rate.String())
	return *f.rate, nil
}

// Fixed is a Provider with a constant rate.
type Fixed decimal.Decimal

func (f Fixed) Rate(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}
