// Command rallyctl runs maintenance tasks against the Rally database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"rally/internal/bootstrap"
	"rally/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rallyctl",
		Short:         "Maintenance commands for posts, activities and reservations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newExpireCmd(),
		newReconcileCmd(),
		newRefreshRateCmd(),
		newEventsCmd(),
	)
	return root
}

// openRuntime loads configuration and connects. Every command owns its
// runtime and closes it before returning.
func openRuntime(ctx context.Context, opts bootstrap.Options) (*bootstrap.Runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return bootstrap.InitRuntime(ctx, cfg, opts)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 32)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
