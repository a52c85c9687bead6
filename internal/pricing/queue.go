// Package pricing looks up live sell prices with at most one lookup in flight per identity.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"buffcart/internal/catalog"
	"buffcart/internal/components/assert"
	"buffcart/internal/components/chrono"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/credentials"
	"buffcart/internal/currency"
	"buffcart/internal/fetch"
	"buffcart/internal/notify"

	"github.com/shopspring/decimal"
)

const (
	report_queue_lookup = "queue.lookup"
	report_queue_reauth = "queue.reauth"
)

const missingSessionMessage = "Buff session cookie not found. Log in on buff.163.com, then refresh credentials."

var errLookupAborted = errors.New("price lookup aborted")

// Fetcher executes a marketplace request.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (json.RawMessage, error)
}

// CredentialSource returns the stored credential, it is read once per lookup.
type CredentialSource interface {
	Current(ctx context.Context) (credentials.Credential, error)
}

// Result is the outcome of one price lookup. Err is nil when the lookup produced a price.
type Result struct {
	Identity catalog.Identity
	// Price is the lowest sell price in USD rounded to cents.
	Price decimal.Decimal
	// CNY is the lowest sell price as listed.
	CNY decimal.Decimal
	Err error
}

func (r Result) Priced() bool {
	return r.Err == nil
}

// Task is a price lookup that has been started.
type Task struct {
	Identity catalog.Identity

	done   chan struct{}
	result Result
}

// Done is closed once the lookup settled and its in-flight marker is cleared.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the lookup settles, it only fails when ctx is done first.
// Abandoning a wait does not stop the lookup.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type QueueOptions struct {
	MarketURL string
	UserAgent string
}

func DefaultQueueOptions() QueueOptions {
	return QueueOptions{
		MarketURL: DefaultMarketURL,
		UserAgent: fetch.DefaultUserAgent,
	}
}

type Queue struct {
	fetcher  Fetcher
	creds    CredentialSource
	rates    currency.Provider
	notifier notify.Notifier
	clock    chrono.API
	tel      telemetry.API
	opts     QueueOptions

	mu       sync.Mutex
	inFlight map[catalog.Identity]*Task
}

func NewQueue(
	fetcher Fetcher,
	creds CredentialSource,
	rates currency.Provider,
	notifier notify.Notifier,
	clock chrono.API,
	tel telemetry.API,
	opts QueueOptions,
) *Queue {
	assert.NotNil(fetcher)
	assert.NotNil(creds)
	assert.NotNil(rates)
	assert.NotNil(notifier)
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.MarketURL)

	return &Queue{
		fetcher:  fetcher,
		creds:    creds,
		rates:    rates,
		notifier: notifier,
		clock:    clock,
		tel:      telemetry.NewScopedAPI("pricing", tel),
		opts:     opts,
		inFlight: make(map[catalog.Identity]*Task),
	}
}

// Request starts a price lookup for id. When a lookup for id is already in
// flight it returns (nil, false) and does nothing.
//
// Started lookups are never cancelled, they run on a context detached from ctx.
func (q *Queue) Request(ctx context.Context, id catalog.Identity) (*Task, bool) {
	q.mu.Lock()
	if _, ok := q.inFlight[id]; ok {
		q.mu.Unlock()
		return nil, false
	}
	task := &Task{Identity: id, done: make(chan struct{})}
	q.inFlight[id] = task
	q.mu.Unlock()

	go q.run(context.WithoutCancel(ctx), task)
	return task, true
}

// InFlight reports whether a lookup for id is running.
func (q *Queue) InFlight(id catalog.Identity) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inFlight[id]
	return ok
}

func (q *Queue) run(ctx context.Context, task *Task) {
	result := Result{Identity: task.Identity, Err: errLookupAborted}
	defer func() {
		q.mu.Lock()
		delete(q.inFlight, task.Identity)
		q.mu.Unlock()

		task.result = result
		close(task.done)
	}()

	result = q.lookup(ctx, task.Identity)
	if result.Err != nil {
		q.tel.ReportWarning(report_queue_lookup, result.Err, task.Identity.String())
	} else {
		q.tel.ReportDebug("priced", task.Identity.String(), result.Price.String())
	}
}

func (q *Queue) requireReauth(reason string) {
	q.tel.ReportDebug(report_queue_reauth, reason)
	q.notifier.RequireReauth(reason)
}

func (q *Queue) lookup(ctx context.Context, id catalog.Identity) Result {
	fail := func(err error) Result {
		return Result{Identity: id, Err: err}
	}

	if id.BaseItemID <= 0 {
		return fail(ErrIdentityMissing)
	}

	cred, err := q.creds.Current(ctx)
	if err != nil {
		return fail(err)
	}
	if !cred.HasToken() {
		q.requireReauth(missingSessionMessage)
		return fail(ErrCredentialMissing)
	}

	body, err := q.fetcher.Fetch(ctx, sellOrderRequest(q.opts.MarketURL, id, cred, q.opts.UserAgent, q.clock.Now()))
	if err != nil {
		if fetch.IsTerminal(err) {
			q.requireReauth(err.Error())
		}
		return fail(err)
	}

	cny, err := lowestPrice(body)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsSessionError() {
			q.requireReauth(fmt.Sprintf("Buff API session error: %q", apiErr.Message))
		}
		return fail(err)
	}

	usd, err := currency.Convert(ctx, q.rates, cny)
	if err != nil {
		if !errors.Is(err, currency.ErrRateUnavailable) {
			err = fmt.Errorf("%w: %w", currency.ErrRateUnavailable, err)
		}
		return fail(err)
	}
	return Result{Identity: id, Price: usd, CNY: cny}
}
