package commands

import (
	"context"
	"time"

	"buffcart/cmd/buffcart/globals"
	"buffcart/internal/components/chrono"
	"buffcart/internal/components/telemetry"
	"buffcart/lib/util/serviceutil"
	"buffcart/services/buffcart"

	"github.com/spf13/cobra"
)

var serveAddr *string

func init() {
	serveAddr = serveCmd.Flags().String("addr", "", "Override the bridge listen address from the config.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the cookie bridge, the credential listener and the periodic catalog refresh.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		value := globals.Get(ctx)
		tel := telemetry.SlogAPI{}

		otel, err := telemetry.Setup(ctx, "buffcart", value.Config.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			otel.Shutdown(shutdownCtx)
		}()
		telemetry.InstrumentPerfStats(ctx, tel)

		err = value.Service.Start(ctx)
		if err != nil {
			serviceutil.Fatal("failed to start", err)
		}
		printNotices(value)

		cron := chrono.NewStandardCron(tel)
		defer cron.Stop()

		addr := value.Config.BridgeAddr
		if *serveAddr != "" {
			addr = *serveAddr
		}
		err = value.Service.RunDaemons(ctx, buffcart.DaemonOptions{
			Bridge:         value.Bridge,
			Addr:           addr,
			Cron:           cron,
			CatalogRefresh: value.Config.CatalogRefresh,
		})
		if err != nil {
			serviceutil.Fatal("daemon stopped", err)
		}
	},
}
