package commands

import (
	"fmt"
	"io"
	"os"

	"buffcart/lib/util/serviceutil"
	"buffcart/services/buffcart"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var batchPercent *string

func init() {
	batchPercent = batchCmd.Flags().StringP("percent", "p", "100", "The percentage the adjusted total is scaled by.")
	rootCmd.AddCommand(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Adds the best match of every line of a file (or stdin) to the cart.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var input io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				serviceutil.Fatal("failed to open list", err)
			}
			defer f.Close()
			input = f
		}
		list, err := io.ReadAll(input)
		if err != nil {
			serviceutil.Fatal("failed to read list", err)
		}

		value := start(cmd.Context())
		value.Service.AddBatch(cmd.Context(), string(list), func(p buffcart.BatchProgress) {
			if p.Err != nil {
				fmt.Fprintf(os.Stderr, "Item %d/%d: %s\n", p.Index, p.Total, text.FgRed.Sprint(p.Err.Error()))
				return
			}
			fmt.Printf("Item %d/%d: %s\n", p.Index, p.Total, p.Match.Variant.DisplayName)
		})

		settle(cmd.Context(), value)
		printCart(value, *batchPercent)
	},
}
