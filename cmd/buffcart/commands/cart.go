package commands

import (
	"errors"
	"fmt"
	"strings"

	"buffcart/cmd/buffcart/globals"
	"buffcart/internal/cart"
	"buffcart/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var cartPercent *string

func init() {
	cartPercent = cartCmd.PersistentFlags().StringP("percent", "p", "100", "The percentage the adjusted total is scaled by.")

	cartCmd.AddCommand(cartListCmd)
	cartCmd.AddCommand(cartAddCmd)
	cartCmd.AddCommand(cartIncCmd)
	cartCmd.AddCommand(cartDecCmd)
	cartCmd.AddCommand(cartClearCmd)
	cartCmd.AddCommand(cartExportCmd)
	cartCmd.AddCommand(cartRetryCmd)
	rootCmd.AddCommand(cartCmd)
}

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Shows and edits the cart.",
}

var cartListCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints the cart, looking up any price that is missing first.",
	Run: func(cmd *cobra.Command, args []string) {
		value := start(cmd.Context())
		settle(cmd.Context(), value)
		printCart(value, *cartPercent)
	},
}

var cartAddCmd = &cobra.Command{
	Use:   "add <identity|query...>",
	Short: "Adds one unit of the best matching item.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value := start(cmd.Context())
		query := strings.Join(args, " ")

		id, err := resolveIdentity(value, query)
		if err != nil {
			serviceutil.Fatal("failed to find item", err)
		}
		variant, ok := value.Service.Variant(id)
		if !ok {
			serviceutil.Fatal("failed to find item", fmt.Errorf("%s is not in the catalog", id))
		}
		_, err = value.Service.AddVariant(cmd.Context(), variant)
		if err != nil {
			serviceutil.Fatal("failed to add item", err)
		}
		fmt.Println("added", variant.DisplayName)

		settle(cmd.Context(), value)
		printCart(value, *cartPercent)
	},
}

var cartIncCmd = &cobra.Command{
	Use:   "inc <identity|query...>",
	Short: "Increments the quantity of an entry.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value := start(cmd.Context())
		id, err := resolveIdentity(value, strings.Join(args, " "))
		if err != nil {
			serviceutil.Fatal("failed to find item", err)
		}
		_, err = value.Service.Cart().Increment(cmd.Context(), id)
		if err != nil {
			serviceutil.Fatal("failed to increment", err)
		}
		settle(cmd.Context(), value)
		printCart(value, *cartPercent)
	},
}

var cartDecCmd = &cobra.Command{
	Use:   "dec <identity|query...>",
	Short: "Decrements the quantity of an entry, removing it at zero.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value := start(cmd.Context())
		id, err := resolveIdentity(value, strings.Join(args, " "))
		if err != nil {
			serviceutil.Fatal("failed to find item", err)
		}
		entry, removed, err := value.Service.Cart().Decrement(cmd.Context(), id)
		if errors.Is(err, cart.ErrNotInCart) {
			serviceutil.Fatal("failed to decrement", fmt.Errorf("%s: %w", id, err))
		}
		if err != nil {
			serviceutil.Fatal("failed to decrement", err)
		}
		if removed {
			fmt.Println("removed", entry.DisplayName)
		}
		settle(cmd.Context(), value)
		printCart(value, *cartPercent)
	},
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Removes every entry.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		err := value.Service.Cart().Clear(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to clear cart", err)
		}
		fmt.Println("cart cleared")
	},
}

var cartExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Prints the cart as plain text for sharing.",
	Run: func(cmd *cobra.Command, args []string) {
		value := start(cmd.Context())
		settle(cmd.Context(), value)
		fmt.Println(value.Service.Cart().Export(*cartPercent))
		printNotices(value)
	},
}

var cartRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Looks up every price that is loading or failed again.",
	Run: func(cmd *cobra.Command, args []string) {
		value := start(cmd.Context())
		// start already requeues, this only waits for the lookups
		settle(cmd.Context(), value)
		printCart(value, *cartPercent)
	},
}
