package main

import (
	"strings"

	"rally/internal/bootstrap"
	"rally/internal/notifications"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the domain event stream",
	}

	var types []string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events from Redis as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, bootstrap.Options{SkipSchema: true})
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			out := make(chan notifications.Event, 64)
			err = rt.Notifier.StartEventSubscriber(ctx, func(_ string, ev notifications.Event) {
				if matchesType(ev.Type, types) {
					out <- ev
				}
			})
			if err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-out:
					if err := printJSON(cmd, ev); err != nil {
						return err
					}
				}
			}
		},
	}
	tail.Flags().StringSliceVar(&types, "type", nil, "Only show these event types (prefix match, e.g. reservation.)")
	cmd.AddCommand(tail)
	return cmd
}

func matchesType(eventType string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.HasPrefix(eventType, f) {
			return true
		}
	}
	return false
}
