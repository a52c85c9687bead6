package buffcart

import (
	"context"
	"encoding/json"
	"net/http"

	"buffcart/internal/cart"
	"buffcart/internal/components/chrono"
	"buffcart/internal/credentials"
	"buffcart/lib/util/serviceutil"

	"golang.org/x/sync/errgroup"
)

const report_daemon_refresh = "daemon.catalog-refresh"

type DaemonOptions struct {
	Bridge *credentials.BridgeStore
	// Addr is where the bridge endpoints are served.
	Addr string
	Cron chrono.CronAPI
	// CatalogRefresh is the cron spec of the catalog refresh.
	CatalogRefresh string
}

type statusResponse struct {
	Reauth   string       `json:"reauth,omitempty"`
	Entries  []cart.Entry `json:"entries"`
	Raw      string       `json:"raw_total"`
	Adjusted string       `json:"adjusted_total"`
	Percent  string       `json:"percent"`
}

// Handler serves the bridge endpoints and GET /status.
func (s *Service) Handler(bridge *credentials.BridgeStore) http.Handler {
	mux := http.NewServeMux()
	bridgeHandler := bridge.Handler()
	mux.Handle("/cookies", bridgeHandler)
	mux.Handle("/navigation", bridgeHandler)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		totals := s.cart.Totals(r.URL.Query().Get("percent"))
		reason, _ := s.banner.Reauth()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statusResponse{
			Reauth:   reason,
			Entries:  s.cart.Entries(),
			Raw:      totals.Raw.StringFixed(2),
			Adjusted: totals.Adjusted.StringFixed(2),
			Percent:  totals.Percent.String(),
		})
	})
	return mux
}

// RunDaemons runs the credential listener, the bridge server and the periodic
// catalog refresh until ctx is done or one of them fails.
func (s *Service) RunDaemons(ctx context.Context, opts DaemonOptions) error {
	if opts.Cron != nil && opts.CatalogRefresh != "" {
		err := opts.Cron.Cron(opts.CatalogRefresh, func() {
			_, err := s.LoadCatalog(ctx, false)
			if err != nil {
				s.tel.ReportWarning(report_daemon_refresh, err)
			}
		})
		if err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.mirror.Run(groupCtx, opts.Bridge)
		return nil
	})
	group.Go(func() error {
		return serviceutil.ServeHttp(groupCtx, opts.Addr, s.Handler(opts.Bridge))
	})

	return group.Wait()
}
