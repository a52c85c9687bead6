package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buffcart/internal/components/assert"
	"buffcart/internal/components/chrono"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/kvstore"
	"buffcart/internal/notify"

	"github.com/go-resty/resty/v2"
)

const (
	report_loader_refresh = "loader.refresh"
	report_loader_cache   = "loader.cache"
)

// durable store keys
const (
	CacheKey     = "processedMarketItemsCache"
	LastFetchKey = "marketItemsLastFetch"
)

const DefaultSourceURL = "https://raw.githubusercontent.com/ModestSerhat/cs2-marketplace-ids/refs/heads/main/cs2_marketplaceids.json"

const FallbackWarning = "Failed to update item data. Using cache (might be outdated)."

var (
	// ErrEmptyCatalog is returned when the source yields no usable records.
	ErrEmptyCatalog = errors.New("item list is empty")
	// ErrNoCatalog is returned when a refresh failed and there is no cache to fall back to.
	ErrNoCatalog = errors.New("no item list available")
)

// Source fetches the raw item list.
type Source interface {
	Fetch(ctx context.Context) (map[string]RawItem, error)
}

type HTTPSource struct {
	client *resty.Client
	url    string
}

func NewHTTPSource(url string, tel telemetry.API) *HTTPSource {
	client := resty.New()
	client.SetTimeout(time.Minute)
	telemetry.InstrumentResty(client, "buffcart/catalog", telemetry.NewScopedAPI("catalog_source", tel))
	return &HTTPSource{client: client, url: url}
}

type sourcePayload struct {
	Items map[string]RawItem `json:"items"`
}

func (s *HTTPSource) Fetch(ctx context.Context) (map[string]RawItem, error) {
	var payload sourcePayload
	res, err := s.client.R().
		SetContext(ctx).
		SetResult(&payload).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("fetch item list: %w", err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("fetch item list: status %d", res.StatusCode())
	}
	if payload.Items == nil {
		return nil, fmt.Errorf("fetch item list: 'items' key missing")
	}
	return payload.Items, nil
}

// Catalog is the result of one load.
type Catalog struct {
	Variants  []Variant
	FetchedAt time.Time
	// Stale is set when a refresh failed and the cache was used instead.
	Stale bool
}

type LoaderOptions struct {
	// MaxAge is how long a cached catalog is used without refreshing.
	MaxAge time.Duration
}

func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{MaxAge: 24 * time.Hour}
}

// Loader keeps the normalized catalog cached in the durable store.
type Loader struct {
	store    kvstore.Store
	source   Source
	clock    chrono.API
	notifier notify.Notifier
	tel      telemetry.API
	opts     LoaderOptions
}

func NewLoader(store kvstore.Store, source Source, clock chrono.API, notifier notify.Notifier, tel telemetry.API, opts LoaderOptions) *Loader {
	assert.NotNil(store)
	assert.NotNil(source)
	assert.NotNil(clock)
	assert.NotNil(notifier)
	assert.NotNil(tel)

	return &Loader{
		store:    store,
		source:   source,
		clock:    clock,
		notifier: notifier,
		tel:      telemetry.NewScopedAPI("catalog", tel),
		opts:     opts,
	}
}

func (l *Loader) cached(ctx context.Context) ([]Variant, time.Time, error) {
	variants, _, err := kvstore.GetJSON[[]Variant](ctx, l.store, CacheKey)
	if err != nil {
		return nil, time.Time{}, err
	}
	lastFetch, _, err := kvstore.GetJSON[int64](ctx, l.store, LastFetchKey)
	if err != nil {
		return nil, time.Time{}, err
	}
	return variants, time.Unix(lastFetch, 0), nil
}

// Load returns the cached catalog while it is younger than MaxAge and refreshes it otherwise.
func (l *Loader) Load(ctx context.Context) (Catalog, error) {
	variants, fetchedAt, err := l.cached(ctx)
	if err != nil {
		l.tel.ReportWarning(report_loader_cache, err)
	}
	if len(variants) > 0 && l.clock.Now().Sub(fetchedAt) < l.opts.MaxAge {
		return Catalog{Variants: variants, FetchedAt: fetchedAt}, nil
	}
	return l.Refresh(ctx)
}

// Refresh fetches and normalizes the item list regardless of the cache's age,
// a failed refresh falls back to the cache.
func (l *Loader) Refresh(ctx context.Context) (Catalog, error) {
	variants, err := l.fetch(ctx)
	if err == nil {
		now := l.clock.Now()
		err = kvstore.SetJSON(ctx, l.store, map[string]any{
			CacheKey:     variants,
			LastFetchKey: now.Unix(),
		})
		if err != nil {
			l.tel.ReportBroken(report_loader_cache, err)
		}
		l.tel.ReportCount("catalog.variants", int64(len(variants)))
		return Catalog{Variants: variants, FetchedAt: now}, nil
	}
	l.tel.ReportWarning(report_loader_refresh, err)

	cached, fetchedAt, cacheErr := l.cached(ctx)
	if cacheErr != nil {
		l.tel.ReportBroken(report_loader_cache, cacheErr)
	}
	if len(cached) == 0 {
		return Catalog{}, fmt.Errorf("%w: %w", ErrNoCatalog, err)
	}
	l.notifier.Warn(FallbackWarning)
	return Catalog{Variants: cached, FetchedAt: fetchedAt, Stale: true}, nil
}

func (l *Loader) fetch(ctx context.Context) ([]Variant, error) {
	raw, err := l.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	variants := Normalize(raw)
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w (%d records)", ErrEmptyCatalog, len(raw))
	}
	return variants, nil
}
