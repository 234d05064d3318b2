package main

import (
	"fmt"
	"os"
	"time"

	"rally/internal/bootstrap"
	"rally/internal/seed"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var (
		fixture string
		clean   bool
		opts    seed.Options
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with demo or generated data",
		Long: `Populate the database through the domain services.

Without flags the built-in demo fixtures are applied. --fixture loads a YAML
file in the same format; --posts generates random data instead.

Examples:
  rallyctl seed
  rallyctl seed --fixture ./fixtures/meetups.yaml --clean
  rallyctl seed --posts 200 --users 80 --seed 7`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if clean {
				if err := seed.ClearAll(rt.DB); err != nil {
					return fmt.Errorf("cleanup failed: %w", err)
				}
			}

			var report seed.Report
			switch {
			case opts.NumPosts > 0:
				report, err = seed.NewFactory(rt.Services, opts).Run(ctx, time.Now())
			default:
				var f *seed.Fixtures
				if f, err = loadFixtures(fixture); err != nil {
					return err
				}
				report, err = seed.Apply(ctx, rt.Services, f, time.Now())
			}
			if err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "YAML fixture file (default: built-in demo data)")
	cmd.Flags().BoolVar(&clean, "clean", false, "Delete existing data first")
	cmd.Flags().IntVar(&opts.NumPosts, "posts", 0, "Generate this many random posts instead of fixtures")
	cmd.Flags().IntVar(&opts.NumUsers, "users", 50, "Number of distinct user IDs for generated data")
	cmd.Flags().IntVar(&opts.MaxReactions, "max-reactions", 15, "Upper bound of reactions per generated post")
	cmd.Flags().IntVar(&opts.ConvertEvery, "convert-every", 2, "Convert every Nth post that reached the prompt threshold")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "Random seed for generated data (0 = time based)")
	return cmd
}

func loadFixtures(path string) (*seed.Fixtures, error) {
	if path == "" {
		return seed.DemoFixtures()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()
	return seed.LoadFixtures(file)
}
