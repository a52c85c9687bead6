package commands

import (
	"fmt"

	"buffcart/cmd/buffcart/globals"
	"buffcart/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	catalogCmd.AddCommand(catalogRefreshCmd)
	catalogCmd.AddCommand(catalogInfoCmd)
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the cached item catalog.",
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Downloads the item list again, ignoring the cache age.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		loaded, err := value.Service.LoadCatalog(cmd.Context(), true)
		if err != nil {
			serviceutil.Fatal("failed to refresh catalog", err)
		}
		printNotices(value)
		fmt.Printf("%d variants, fetched %s\n", len(loaded.Variants), loaded.FetchedAt.Local().Format("2006-01-02 15:04"))
	},
}

var catalogInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Shows the catalog that searches run against.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		loaded, err := value.Service.LoadCatalog(cmd.Context(), false)
		if err != nil {
			serviceutil.Fatal("failed to load catalog", err)
		}
		printNotices(value)
		fmt.Printf("variants: %d\n", len(loaded.Variants))
		fmt.Printf("fetched:  %s\n", loaded.FetchedAt.Local().Format("2006-01-02 15:04"))
		if loaded.Stale {
			fmt.Println("stale:    yes, the last refresh failed")
		}
	},
}
