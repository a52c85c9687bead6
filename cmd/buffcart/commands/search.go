package commands

import (
	"fmt"
	"strings"

	"buffcart/cmd/buffcart/globals"
	"buffcart/cmd/buffcart/utils"
	"buffcart/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var searchLimit *int

func init() {
	searchLimit = searchCmd.Flags().IntP("limit", "n", 10, "The maximum number of results.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Fuzzy searches the catalog.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		_, err := value.Service.LoadCatalog(cmd.Context(), false)
		if err != nil {
			serviceutil.Fatal("failed to load catalog", err)
		}
		printNotices(value)

		matches := value.Service.Search(strings.Join(args, " "), *searchLimit)
		if len(matches) == 0 {
			fmt.Println("no matches")
			return
		}

		t := utils.NewTable()
		t.AppendHeader(table.Row{"Identity", "Item", "Score"})
		for _, m := range matches {
			t.AppendRow(table.Row{
				m.Variant.Identity.String(),
				m.Variant.DisplayName,
				fmt.Sprintf("%.2f", m.Score),
			})
		}
		t.Render()
	},
}
