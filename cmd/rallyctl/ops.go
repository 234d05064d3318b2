package main

import (
	"errors"
	"fmt"

	"rally/internal/bootstrap"
	"rally/internal/models"
	"rally/internal/service"

	"github.com/spf13/cobra"
)

func newExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Retire every active post past its expiry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			ids, err := rt.Services.Posts.ExpireDue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d posts\n", len(ids))
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reconcile [activity-id...]",
		Short: "Repair attendance counters from the reservation rows",
		Long: `Recount attending reservations and rewrite current_attendees where it
drifted. Open spots found this way are filled from the waitlist.

Examples:
  rallyctl reconcile 12 40
  rallyctl reconcile --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("pass activity ids or --all")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := openRuntime(ctx, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if all {
				if err := rt.DB.WithContext(ctx).Model(&models.Activity{}).
					Where("status IN ?", []string{models.ActivityStatusPublished, models.ActivityStatusActive}).
					Order("id").
					Pluck("id", &ids).Error; err != nil {
					return err
				}
			}

			results := make([]*service.ReconcileResult, 0, len(ids))
			for _, id := range ids {
				res, err := rt.Services.Activities.Reconcile(ctx, id)
				if err != nil {
					return fmt.Errorf("activity %d: %w", id, err)
				}
				if res.Drifted() || len(res.Promoted) > 0 {
					results = append(results, res)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d activities, repaired %d\n", len(ids), len(results))
			if len(results) == 0 {
				return nil
			}
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reconcile every published or active activity")
	return cmd
}

func newRefreshRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-rate <activity-id>",
		Short: "Recompute the reservation conversion rate of a converted activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			record, err := rt.Services.Conversions.RefreshConversionRate(ctx, ids[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, record)
		},
	}
}
