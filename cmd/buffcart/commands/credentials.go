package commands

import (
	"fmt"

	"buffcart/cmd/buffcart/globals"
	"buffcart/internal/credentials"
	"buffcart/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	credentialsCmd.AddCommand(credentialsStatusCmd)
	credentialsCmd.AddCommand(credentialsRefreshCmd)
	credentialsCmd.AddCommand(credentialsClearCmd)
	rootCmd.AddCommand(credentialsCmd)
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Inspect and refresh the mirrored Buff session.",
}

func mask(value string) string {
	if value == "" {
		return "(absent)"
	}
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func printCredential(cred credentials.Credential) {
	fmt.Printf("session:   %s\n", mask(cred.Token))
	fmt.Printf("device id: %s\n", mask(cred.DeviceID))
}

var credentialsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the stored credential without touching the live cookies.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		cred, err := value.Service.Credential(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to read credential", err)
		}
		printCredential(cred)
	},
}

var credentialsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Copies the live cookies into the store and retries pending prices.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		err := value.Service.Cart().Load(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to load cart", err)
		}
		cred, err := value.Service.RefreshCredentials(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to refresh credentials", err)
		}
		printCredential(cred)
		if cred.HasToken() {
			settle(cmd.Context(), value)
		}
		printNotices(value)
	},
}

var credentialsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forgets the stored session cookie.",
	Run: func(cmd *cobra.Command, args []string) {
		value := globals.Get(cmd.Context())
		err := value.Service.ClearSession(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to clear session", err)
		}
		fmt.Println("session cleared")
	},
}
