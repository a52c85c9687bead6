// Package buffcart wires the credential mirror, catalog, price queue and cart
// together. It is what the cli and the daemon drive.
package buffcart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"buffcart/internal/cart"
	"buffcart/internal/catalog"
	"buffcart/internal/components/assert"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/credentials"
	"buffcart/internal/notify"
	"buffcart/internal/pricing"
)

const (
	report_service_start   = "service.start"
	report_service_apply   = "service.apply"
	report_service_catalog = "service.catalog"
)

const stillNoSessionMessage = "Still no session cookie. Visit buff.163.com, log in, then refresh credentials again."

var ErrNoMatch = errors.New("no matching item")

type Options struct {
	Mirror *credentials.Mirror
	Queue  *pricing.Queue
	Cart   *cart.Cart
	Loader *catalog.Loader
	Banner *notify.Banner
	Tel    telemetry.API
}

type Service struct {
	mirror *credentials.Mirror
	queue  *pricing.Queue
	cart   *cart.Cart
	loader *catalog.Loader
	banner *notify.Banner
	tel    telemetry.API

	catalogMu sync.RWMutex
	catalog   catalog.Catalog
	searcher  catalog.Searcher

	applying sync.WaitGroup
}

func NewService(opts Options) *Service {
	assert.NotNil(opts.Mirror)
	assert.NotNil(opts.Queue)
	assert.NotNil(opts.Cart)
	assert.NotNil(opts.Loader)
	assert.NotNil(opts.Banner)
	assert.NotNil(opts.Tel)

	return &Service{
		mirror:   opts.Mirror,
		queue:    opts.Queue,
		cart:     opts.Cart,
		loader:   opts.Loader,
		banner:   opts.Banner,
		tel:      telemetry.NewScopedAPI("service", opts.Tel),
		searcher: catalog.NewFuzzySearcher(nil),
	}
}

// Start restores state on process start: credentials are reconciled, the
// saved cart is loaded and every entry without a price is looked up again.
// The catalog is loaded too, a missing catalog is reported but not fatal.
func (s *Service) Start(ctx context.Context) error {
	err := s.mirror.AggressiveReconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile credentials: %w", err)
	}
	err = s.cart.Load(ctx)
	if err != nil {
		return err
	}

	cred, err := s.mirror.Current(ctx)
	if err != nil {
		return err
	}
	if !cred.HasToken() {
		s.banner.RequireReauth("Buff session cookie not found. Log in on buff.163.com, then refresh credentials.")
	}

	s.RequeuePending(ctx)

	_, err = s.LoadCatalog(ctx, false)
	if err != nil {
		s.tel.ReportWarning(report_service_start, err)
	}
	return nil
}

// LoadCatalog loads the catalog (refreshing it when force is set) and rebuilds the search index.
func (s *Service) LoadCatalog(ctx context.Context, force bool) (catalog.Catalog, error) {
	var loaded catalog.Catalog
	var err error
	if force {
		loaded, err = s.loader.Refresh(ctx)
	} else {
		loaded, err = s.loader.Load(ctx)
	}
	if err != nil {
		s.tel.ReportBroken(report_service_catalog, err)
		return catalog.Catalog{}, err
	}

	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.catalog = loaded
	s.searcher = catalog.NewFuzzySearcher(loaded.Variants)
	return loaded, nil
}

func (s *Service) Catalog() catalog.Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.catalog
}

// Variant looks id up in the loaded catalog.
func (s *Service) Variant(id catalog.Identity) (catalog.Variant, bool) {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	for _, v := range s.catalog.Variants {
		if v.Identity == id {
			return v, true
		}
	}
	return catalog.Variant{}, false
}

func (s *Service) Search(query string, limit int) []catalog.Match {
	s.catalogMu.RLock()
	searcher := s.searcher
	s.catalogMu.RUnlock()
	return searcher.Search(query, limit)
}

// requestPrice starts a lookup for id and applies its result to the cart once it settles.
// It returns nil when a lookup for id is already in flight.
func (s *Service) requestPrice(ctx context.Context, id catalog.Identity) *pricing.Task {
	task, started := s.queue.Request(ctx, id)
	if !started {
		return nil
	}

	s.applying.Add(1)
	go func() {
		defer s.applying.Done()
		<-task.Done()
		result, _ := task.Wait(context.Background())
		_, err := s.cart.Apply(context.WithoutCancel(ctx), result)
		if err != nil {
			s.tel.ReportBroken(report_service_apply, err, id.String())
		}
	}()
	return task
}

// AddVariant adds one unit of variant to the cart and looks up its price
// unless the entry is already priced.
func (s *Service) AddVariant(ctx context.Context, variant catalog.Variant) (cart.Entry, error) {
	entry, created, err := s.cart.Add(ctx, variant)
	if err != nil {
		return entry, err
	}
	if created || entry.State != cart.Priced {
		s.requestPrice(ctx, variant.Identity)
	}
	return entry, nil
}

// AddBest adds the best search match for query.
func (s *Service) AddBest(ctx context.Context, query string) (catalog.Match, cart.Entry, error) {
	matches := s.Search(query, 1)
	if len(matches) == 0 {
		return catalog.Match{}, cart.Entry{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
	}
	entry, err := s.AddVariant(ctx, matches[0].Variant)
	return matches[0], entry, err
}

type BatchProgress struct {
	Index int
	Total int
	Query string
	Match catalog.Match
	Err   error
}

// AddBatch processes a newline separated list of queries one by one, blank lines are skipped.
func (s *Service) AddBatch(ctx context.Context, list string, progress func(BatchProgress)) {
	var queries []string
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			queries = append(queries, line)
		}
	}

	for i, query := range queries {
		if ctx.Err() != nil {
			return
		}
		match, _, err := s.AddBest(ctx, query)
		if progress != nil {
			progress(BatchProgress{
				Index: i + 1,
				Total: len(queries),
				Query: query,
				Match: match,
				Err:   err,
			})
		}
	}
}

// RequeuePending looks up every entry that is Loading or Errored again,
// entries whose lookup is already in flight are left alone.
func (s *Service) RequeuePending(ctx context.Context) []*pricing.Task {
	var tasks []*pricing.Task
	for _, id := range s.cart.Pending() {
		if s.queue.InFlight(id) {
			continue
		}
		err := s.cart.MarkLoading(ctx, id)
		if err != nil {
			continue
		}
		task := s.requestPrice(ctx, id)
		if task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// RefreshCredentials re-reads the cookies from the live store. When a session
// is found the banner is cleared and pending entries are looked up again.
func (s *Service) RefreshCredentials(ctx context.Context) (credentials.Credential, error) {
	cred, err := s.mirror.ForceRefresh(ctx)
	if err != nil {
		return cred, err
	}
	if !cred.HasToken() {
		s.banner.RequireReauth(stillNoSessionMessage)
		return cred, nil
	}
	s.banner.Clear()
	s.RequeuePending(ctx)
	return cred, nil
}

func (s *Service) ClearSession(ctx context.Context) error {
	return s.mirror.ClearSession(ctx)
}

func (s *Service) Credential(ctx context.Context) (credentials.Credential, error) {
	return s.mirror.Current(ctx)
}

// Settle waits until every started lookup has been applied to the cart.
func (s *Service) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.applying.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Cart() *cart.Cart {
	return s.cart
}

func (s *Service) Banner() *notify.Banner {
	return s.banner
}
