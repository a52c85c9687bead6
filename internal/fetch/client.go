// Package fetch executes marketplace requests with bounded retry, fixed backoff and
// classification of the response body.
package fetch

import (
	"context"
	"encoding/json"
	"net/http/cookiejar"
	"time"

	"buffcart/internal/components/assert"
	"buffcart/internal/components/chrono"
	"buffcart/internal/components/telemetry"
	"buffcart/lib/util/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch   = "client.fetch"
	report_client_attempt = "client.attempt"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"

type Options struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// RequestsPerSecond limits outbound requests, 0 disables limiting.
	RequestsPerSecond float64
	UserAgent         string
	// BypassCloudflare wraps the transport so the TLS handshake and headers look like a browser.
	BypassCloudflare bool
	// Dump receives every http exchange when set.
	Dump restyutil.Output
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		RetryDelay:        2 * time.Second,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
		UserAgent:         DefaultUserAgent,
		BypassCloudflare:  true,
	}
}

type Request struct {
	URL     string
	Headers map[string]string
}

// Client is the resilient fetch client, it is safe for concurrent use.
type Client struct {
	http  *resty.Client
	opts  Options
	clock chrono.API
	tel   telemetry.API
}

func NewClient(opts Options, clock chrono.API, tel telemetry.API) (*Client, error) {
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.Positive(opts.MaxAttempts)

	tel = telemetry.NewScopedAPI("fetch", tel)

	httpClient := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if opts.BypassCloudflare {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	if opts.UserAgent != "" {
		httpClient.SetHeader("user-agent", opts.UserAgent)
	}
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	if opts.RequestsPerSecond > 0 {
		// burst matches the rate so no requests are dropped, only delayed
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, "buffcart/fetch", tel)
	restyutil.Dump(httpClient, opts.Dump)

	return &Client{
		http:  httpClient,
		opts:  opts,
		clock: clock,
		tel:   tel,
	}, nil
}

// Fetch performs a GET and decodes nothing, it returns the raw json body.
//
// Errors wrap one of ErrTransient, ErrMalformedResponse, ErrAuthenticationRequired or
// ErrChallengeDetected. The last two are returned on first detection, the others are retried
// up to Options.MaxAttempts with Options.RetryDelay in between, the last error is returned as is.
func (c *Client) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	attempt := 0
	operation := func() (json.RawMessage, error) {
		attempt++
		return c.attempt(ctx, req, attempt)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(c.opts.RetryDelay),
			uint64(c.opts.MaxAttempts-1),
		),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		c.tel.ReportWarning(report_client_attempt, err, req.URL, next.String())
	}

	out, err := backoff.RetryNotifyWithTimerAndData(operation, policy, notify, &clockTimer{ctx: ctx, clock: c.clock})
	if err != nil {
		if IsTerminal(err) {
			c.tel.ReportWarning(report_client_fetch, err, req.URL)
		} else {
			c.tel.ReportBroken(report_client_fetch, err, req.URL, attempt)
		}
		return nil, err
	}
	return out, nil
}

func (c *Client) attempt(ctx context.Context, req Request, attempt int) (json.RawMessage, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		Get(req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, &ConnectionError{Attempt: attempt, Err: err}
	}

	body := res.Body()
	if res.IsSuccess() && json.Valid(body) {
		return json.RawMessage(body), nil
	}

	text := string(body)
	if kind := classifyBody(text); kind != nil {
		return nil, backoff.Permanent(&ResponseError{
			Kind:    kind,
			Status:  res.StatusCode(),
			Attempt: attempt,
			Title:   pageTitle(text),
		})
	}

	kind := ErrTransient
	if res.IsSuccess() {
		kind = ErrMalformedResponse
	}
	return nil, &ResponseError{
		Kind:    kind,
		Status:  res.StatusCode(),
		Attempt: attempt,
		Title:   pageTitle(text),
	}
}

// clockTimer implements backoff.Timer on top of chrono.API so retry spacing
// follows whatever clock the client was built with.
type clockTimer struct {
	ctx    context.Context
	clock  chrono.API
	c      chan time.Time
	cancel context.CancelFunc
}

func (t *clockTimer) Start(d time.Duration) {
	t.Stop()
	ctx, cancel := context.WithCancel(t.ctx)
	t.cancel = cancel
	ch := make(chan time.Time, 1)
	t.c = ch
	go func() {
		err := t.clock.Sleep(ctx, d)
		if err == nil {
			ch <- t.clock.Now()
		}
	}()
}

func (t *clockTimer) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}

var _ backoff.Timer = (*clockTimer)(nil)
