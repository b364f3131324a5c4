package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fundscope",
		Short:        "Fund aggregation for bounty requests",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "EVM RPC URL")
	flags.String("fund-repository", "", "FundRepository contract address")
	flags.String("claim-repository", "", "ClaimRepository contract address")
	flags.String("pg-dsn", "", "Postgres DSN, empty uses an in-memory store")
	flags.Duration("call-timeout", 10*time.Second, "timeout for each RPC call")
	flags.StringSlice("tokens", nil, "static token registry entries address:symbol:decimals")
	flags.String("platform-token-symbol", "FND", "symbol of the platform token bucket")
	flags.Int("token-cache-size", 1024, "token metadata LRU size")
	flags.String("profile-url", "", "profile service base URL")
	flags.String("price-url", "", "price service base URL")
	flags.Duration("http-timeout", 10*time.Second, "timeout for profile and price calls")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to a rotated file instead of stderr")

	root.AddCommand(
		newTotalsCmd(),
		newFundersCmd(),
		newRecordCmd(),
		newPendingCmd(),
		newRequestCmd(),
		newWatchCmd(),
		newMigrateCmd(),
	)
	return root
}
