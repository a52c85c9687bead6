package globals

import (
	"os"
	"path/filepath"

	"buffcart/internal/catalog"
	"buffcart/internal/components/telemetry"
	"buffcart/internal/currency"
	"buffcart/internal/pricing"
)

const ConfigName = "buffcart.json5"

// environment variables that seed the session when no cookie export is configured
const (
	SessionEnv  = "BUFFCART_SESSION"
	DeviceIDEnv = "BUFFCART_DEVICE_ID"
)

type Config struct {
	// Database is a sqlite file, or a libsql:// url for a remote database.
	Database          string `json:"database"`
	DatabaseAuthToken string `json:"database_auth_token"`
	// CookiesFile is a browser cookie export, when empty cookies come from
	// the bridge (and the environment) instead.
	CookiesFile       string  `json:"cookies_file"`
	BridgeAddr        string  `json:"bridge_addr"`
	MarketURL         string  `json:"market_url"`
	CatalogURL        string  `json:"catalog_url"`
	RateURL           string  `json:"rate_url"`
	CatalogRefresh    string  `json:"catalog_refresh"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	// DumpDir receives every marketplace http exchange when set.
	DumpDir   string           `json:"dump_dir"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func DefaultConfig() Config {
	database := "buffcart.db"
	home, err := os.UserHomeDir()
	if err == nil {
		database = filepath.Join(home, ".buffcart", "buffcart.db")
	}
	return Config{
		Database:          database,
		BridgeAddr:        "127.0.0.1:7163",
		MarketURL:         pricing.DefaultMarketURL,
		CatalogURL:        catalog.DefaultSourceURL,
		RateURL:           currency.DefaultRateURL,
		CatalogRefresh:    "@hourly",
		RequestsPerSecond: 2,
	}
}
