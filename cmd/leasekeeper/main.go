package main

import (
	"fmt"
	"os"

	"go-leasekeeper/config"

	"github.com/spf13/cobra"
)

// cfg holds the environment defaults; flags write into it.
var cfg = config.Load()

func main() {
	var rootCmd = &cobra.Command{
		Use:   "leasekeeper",
		Short: "Reserve shared resources such as lab machines",
		Long: `Leasekeeper tracks who holds which shared resource and until when.
Run "leasekeeper serve" to host the lease API, then use the other commands
to list, reserve and clear resources against that server.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Leasekeeper server URL (LEASEKEEPER_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.User, "user", cfg.User, "Identity used to reserve and clear (LEASEKEEPER_USER)")

	rootCmd.AddCommand(
		newServeCmd(),
		newListCmd(),
		newGetCmd(),
		newReserveCmd(),
		newClearCmd(),
		newCreateCmd(),
		newDeleteCmd(),
		newWatchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
