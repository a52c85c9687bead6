package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"buffcart/internal/catalog"
	"buffcart/internal/components/chrono"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/credentials"
	"buffcart/internal/currency"
	"buffcart/internal/fetch"
	"buffcart/internal/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	calls    int64
	gate     chan struct{}
	body     string
	err      error
	mu       sync.Mutex
	requests []fetch.Request
}

func (f *stubFetcher) Fetch(ctx context.Context, req fetch.Request) (json.RawMessage, error) {
	atomic.AddInt64(&f.calls, 1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.body), nil
}

type stubCreds struct {
	cred credentials.Credential
	err  error
}

func (c stubCreds) Current(context.Context) (credentials.Credential, error) {
	return c.cred, c.err
}

type brokenRates struct{}

func (brokenRates) Rate(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal{}, errors.New("frankfurter is down")
}

var loggedIn = stubCreds{cred: credentials.Credential{Token: "token-1", DeviceID: "device-1"}}

func newQueue(fetcher Fetcher, creds CredentialSource, rates currency.Provider) (*Queue, *notify.Banner) {
	tel := &telemetry.Recorder{}
	banner := notify.NewBanner(tel)
	clock := chrono.NewFake(time.UnixMilli(1700000000123))
	return NewQueue(fetcher, creds, rates, banner, clock, tel, DefaultQueueOptions()), banner
}

func lookup(t testing.TB, q *Queue, id catalog.Identity) Result {
	task, started := q.Request(context.Background(), id)
	require.True(t, started)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := task.Wait(ctx)
	require.NoError(t, err)
	require.False(t, q.InFlight(id), "in-flight marker leaked")
	return result
}

var rate = currency.Fixed(decimal.RequireFromString("0.14"))

func TestQueueSingleFetchPerIdentity(t *testing.T) {
	fetcher := &stubFetcher{
		gate: make(chan struct{}),
		body: `{"code":"OK","data":{"items":[{"price":"10"}],"total_count":1}}`,
	}
	q, _ := newQueue(fetcher, loggedIn, rate)
	id := catalog.Identity{BaseItemID: 123, VariantTagID: 456}

	task, started := q.Request(context.Background(), id)
	require.True(t, started)
	require.True(t, q.InFlight(id))

	wg := sync.WaitGroup{}
	var duplicates int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := q.Request(context.Background(), id); !ok {
				atomic.AddInt64(&duplicates, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 20, duplicates)

	close(fetcher.gate)
	<-task.Done()
	result, err := task.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, result.Priced())
	require.Equal(t, "1.40", result.Price.StringFixed(2))
	require.EqualValues(t, 1, atomic.LoadInt64(&fetcher.calls))
	require.False(t, q.InFlight(id))

	// settled identities can be looked up again
	again := lookup(t, q, id)
	require.True(t, again.Priced())
	require.EqualValues(t, 2, atomic.LoadInt64(&fetcher.calls))
}

func TestQueueDistinctIdentitiesRunConcurrently(t *testing.T) {
	fetcher := &stubFetcher{
		gate: make(chan struct{}),
		body: `{"code":"OK","data":{"items":[{"price":"10"}]}}`,
	}
	q, _ := newQueue(fetcher, loggedIn, rate)

	first, ok := q.Request(context.Background(), catalog.Identity{BaseItemID: 1})
	require.True(t, ok)
	second, ok := q.Request(context.Background(), catalog.Identity{BaseItemID: 1, VariantTagID: 2})
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fetcher.calls) == 2
	}, 2*time.Second, 5*time.Millisecond)
	close(fetcher.gate)
	<-first.Done()
	<-second.Done()
}

func TestQueueWaitIsCancellable(t *testing.T) {
	fetcher := &stubFetcher{gate: make(chan struct{}), body: `{"code":"OK","data":{"items":[{"price":"1"}]}}`}
	q, _ := newQueue(fetcher, loggedIn, rate)
	id := catalog.Identity{BaseItemID: 9}

	task, _ := q.Request(context.Background(), id)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := task.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// the lookup itself keeps running
	require.True(t, q.InFlight(id))
	close(fetcher.gate)
	<-task.Done()
	require.False(t, q.InFlight(id))
}

func TestQueueLowestPrice(t *testing.T) {
	fetcher := &stubFetcher{body: `{"code":"OK","data":{"items":[
		{"price":"15.5"}, {"price":"12.25"}, {"price":"oops"}, {"price":13}
	],"total_count":4}}`}
	q, banner := newQueue(fetcher, loggedIn, rate)

	result := lookup(t, q, catalog.Identity{BaseItemID: 123})
	require.NoError(t, result.Err)
	require.Equal(t, "12.25", result.CNY.String())
	// 12.25 * 0.14 = 1.715
	require.Equal(t, "1.72", result.Price.StringFixed(2))
	_, reauth := banner.Reauth()
	require.False(t, reauth)
}

func TestQueueErrors(t *testing.T) {
	table := []struct {
		name    string
		body    string
		err     error
		creds   CredentialSource
		rates   currency.Provider
		id      catalog.Identity
		reason  string
		target  error
		reauth  bool
		fetches int64
	}{
		{
			name:    "credential missing",
			creds:   stubCreds{cred: credentials.Credential{DeviceID: "device-1"}},
			reason:  "credential missing",
			target:  ErrCredentialMissing,
			reauth:  true,
			fetches: 0,
		},
		{
			name:    "identity missing",
			id:      catalog.Identity{},
			reason:  "missing goods id",
			target:  ErrIdentityMissing,
			fetches: 0,
		},
		{
			name:    "invalid argument",
			body:    `{"code":"Invalid Argument","error":"Not a valid choice","data":null}`,
			reason:  "Buff API: Not a valid choice",
			fetches: 1,
		},
		{
			name:    "api session error",
			body:    `{"code":"Login Required","error":"Please login again"}`,
			reason:  "Buff API: Please login again",
			reauth:  true,
			fetches: 1,
		},
		{
			name:    "api error without message",
			body:    `{"code":"System Error","error":null}`,
			reason:  "Buff API: System Error",
			fetches: 1,
		},
		{
			name:    "no orders with count",
			body:    `{"code":"OK","data":{"items":[],"total_count":0}}`,
			reason:  "no sell orders (Count: 0)",
			target:  ErrEmptyOrderBook,
			fetches: 1,
		},
		{
			name:    "no orders without data",
			body:    `{"code":"OK"}`,
			reason:  "no sell orders (Empty data structure)",
			target:  ErrEmptyOrderBook,
			fetches: 1,
		},
		{
			name:    "unparseable prices",
			body:    `{"code":"OK","data":{"items":[{"price":"n/a"},{"price":null}]}}`,
			reason:  "price unavailable",
			target:  ErrPriceUnavailable,
			fetches: 1,
		},
		{
			name:    "rate unavailable",
			body:    `{"code":"OK","data":{"items":[{"price":"3"}]}}`,
			rates:   brokenRates{},
			target:  currency.ErrRateUnavailable,
			fetches: 1,
		},
		{
			name:    "login page",
			err:     &fetch.ResponseError{Kind: fetch.ErrAuthenticationRequired, Status: 302, Attempt: 1},
			target:  fetch.ErrAuthenticationRequired,
			reauth:  true,
			fetches: 1,
		},
		{
			name:    "transient exhausted",
			err:     &fetch.ResponseError{Kind: fetch.ErrTransient, Status: 502, Attempt: 3},
			target:  fetch.ErrTransient,
			fetches: 1,
		},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			creds := row.creds
			if creds == nil {
				creds = loggedIn
			}
			rates := row.rates
			if rates == nil {
				rates = rate
			}
			id := row.id
			if row.name != "identity missing" {
				id = catalog.Identity{BaseItemID: 123}
			}

			fetcher := &stubFetcher{body: row.body, err: row.err}
			q, banner := newQueue(fetcher, creds, rates)

			result := lookup(t, q, id)
			require.False(t, result.Priced())
			if row.reason != "" {
				require.EqualError(t, result.Err, row.reason)
			}
			if row.target != nil {
				require.ErrorIs(t, result.Err, row.target)
			}
			_, reauth := banner.Reauth()
			require.Equal(t, row.reauth, reauth)
			require.Equal(t, row.fetches, atomic.LoadInt64(&fetcher.calls))
		})
	}
}

func TestSellOrderRequest(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	cred := credentials.Credential{Token: "tok", DeviceID: "dev"}

	req := sellOrderRequest(DefaultMarketURL, catalog.Identity{BaseItemID: 123, VariantTagID: 456}, cred, "agent", now)
	parsed, err := url.Parse(req.URL)
	require.NoError(t, err)
	require.Equal(t, "buff.163.com", parsed.Host)
	require.Equal(t, "/api/market/goods/sell_order", parsed.Path)

	query := parsed.Query()
	require.Equal(t, "csgo", query.Get("game"))
	require.Equal(t, "123", query.Get("goods_id"))
	require.Equal(t, "1", query.Get("page_num"))
	require.Equal(t, "price.asc", query.Get("sort_by"))
	require.Equal(t, "1", query.Get("allow_tradable_cooldown"))
	require.Equal(t, "456", query.Get("tag_ids"))
	require.Equal(t, "1700000000123", query.Get("_"))

	require.Equal(t, map[string]string{
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Referer":          "https://buff.163.com/goods/123?game=csgo&tag_ids=456",
		"User-Agent":       "agent",
		"X-Requested-With": "XMLHttpRequest",
		"Cookie":           "session=tok; Device-Id=dev; Locale-Supported=en; game=csgo;",
	}, req.Headers)

	req = sellOrderRequest(DefaultMarketURL, catalog.Identity{BaseItemID: 123}, credentials.Credential{Token: "tok"}, "agent", now)
	parsed, err = url.Parse(req.URL)
	require.NoError(t, err)
	require.False(t, parsed.Query().Has("tag_ids"))
	require.Equal(t, "https://buff.163.com/goods/123?game=csgo", req.Headers["Referer"])
	require.Equal(t, "session=tok; Locale-Supported=en; game=csgo;", req.Headers["Cookie"])
}
