package commands

import (
	"context"
	"fmt"
	"os"

	"buffcart/cmd/buffcart/globals"
	"buffcart/internal/components/telemetry"
	"buffcart/lib/configutil"
	"buffcart/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	configPath  *string
	verbose     *bool
	dbOverride  *string
	cookiesFile *string
	dumpHttp    *string
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "", "Path to the config file, by default buffcart.json5 is searched for upwards from the working directory.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
	dbOverride = rootCmd.PersistentFlags().String("db", "", "Override the database path from the config.")
	cookiesFile = rootCmd.PersistentFlags().String("cookies", "", "Read cookies from a browser cookie export instead of the bridge.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Write every marketplace request and response to this directory (cookies are redacted).")
}

func readConfig() (globals.Config, error) {
	err := configutil.LoadEnv(".env")
	if err != nil {
		return globals.Config{}, err
	}

	var cfg globals.Config
	if *configPath != "" {
		cfg, err = configutil.ReadConfig(*configPath, globals.DefaultConfig())
	} else {
		cfg, err = configutil.ReadRecursively(globals.ConfigName, globals.DefaultConfig())
	}
	if err != nil && !os.IsNotExist(err) {
		return globals.Config{}, err
	}

	if *dbOverride != "" {
		cfg.Database = *dbOverride
	}
	if *cookiesFile != "" {
		cfg.CookiesFile = *cookiesFile
	}
	if *dumpHttp != "" {
		cfg.DumpDir = *dumpHttp
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "buffcart",
	Short: "buffcart prices a cart of CS2 items against the lowest Buff163 sell orders.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		value, err := openApp(cfg, cmd.Name() == serveCmd.Name())
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		cmd.SetContext(globals.Set(cmd.Context(), value))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := globals.Get(cmd.Context()).Close()
		if err != nil {
			serviceutil.Fatal("failed to close database", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
