package commands

import (
	"os"

	"buffcart/cmd/buffcart/globals"
	"buffcart/internal/cart"
	"buffcart/internal/catalog"
	"buffcart/internal/components/chrono"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/credentials"
	"buffcart/internal/currency"
	"buffcart/internal/fetch"
	"buffcart/internal/kvstore"
	"buffcart/internal/notify"
	"buffcart/internal/pricing"
	"buffcart/lib/util/restyutil"
	"buffcart/services/buffcart"
)

// openApp wires the service from cfg. The serve command always listens on the
// bridge, the other commands read a cookie export when one is configured.
func openApp(cfg globals.Config, useBridge bool) (*globals.Value, error) {
	tel := telemetry.SlogAPI{}
	clock := chrono.StandardImpl{}

	db, err := kvstore.Open(kvstore.RemoteURL(cfg.Database, cfg.DatabaseAuthToken))
	if err != nil {
		return nil, err
	}
	store := kvstore.NewSQLStore(db)

	var bridge *credentials.BridgeStore
	var live credentials.LiveStore
	if cfg.CookiesFile != "" && !useBridge {
		live = credentials.FileStore{Path: cfg.CookiesFile}
	} else {
		bridge = seededBridge()
		live = bridge
	}

	mirror, err := credentials.NewMirror(live, store, clock, tel, credentials.DefaultMirrorOptions())
	if err != nil {
		db.Close()
		return nil, err
	}

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.RequestsPerSecond = cfg.RequestsPerSecond
	if cfg.DumpDir != "" {
		output, err := restyutil.NewDirectoryOutput(cfg.DumpDir)
		if err != nil {
			db.Close()
			return nil, err
		}
		fetchOpts.Dump = output
	}
	client, err := fetch.NewClient(fetchOpts, clock, tel)
	if err != nil {
		db.Close()
		return nil, err
	}

	banner := notify.NewBanner(tel)
	queueOpts := pricing.DefaultQueueOptions()
	queueOpts.MarketURL = cfg.MarketURL
	queue := pricing.NewQueue(
		client,
		mirror,
		currency.NewFrankfurter(cfg.RateURL, tel),
		banner,
		clock,
		tel,
		queueOpts,
	)

	service := buffcart.NewService(buffcart.Options{
		Mirror: mirror,
		Queue:  queue,
		Cart:   cart.New(store, tel),
		Loader: catalog.NewLoader(
			store,
			catalog.NewHTTPSource(cfg.CatalogURL, tel),
			clock,
			banner,
			tel,
			catalog.DefaultLoaderOptions(),
		),
		Banner: banner,
		Tel:    tel,
	})

	return &globals.Value{
		Config:  cfg,
		Service: service,
		Store:   store,
		Bridge:  bridge,
		Close:   db.Close,
	}, nil
}

// seededBridge returns a bridge holding the cookies given through the environment, if any.
func seededBridge() *credentials.BridgeStore {
	bridge := credentials.NewBridgeStore()
	domain := ".buff.163.com"
	if session := os.Getenv(globals.SessionEnv); session != "" {
		bridge.Apply(credentials.Change{Name: credentials.SessionCookie, Domain: domain, Value: session})
	}
	if device := os.Getenv(globals.DeviceIDEnv); device != "" {
		bridge.Apply(credentials.Change{Name: credentials.DeviceIDCookie, Domain: domain, Value: device})
	}
	return bridge
}
