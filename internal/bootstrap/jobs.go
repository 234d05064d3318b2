package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"rally/internal/middleware"
	"rally/internal/service"
)

// StartExpiryLoop retires overdue posts every interval until ctx is done.
func StartExpiryLoop(ctx context.Context, posts *service.PostService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ids, err := posts.ExpireDue(ctx)
				if err != nil {
					middleware.Logger.ErrorContext(ctx, "post expiry failed", slog.String("error", err.Error()))
					continue
				}
				if len(ids) > 0 {
					middleware.Logger.InfoContext(ctx, "posts expired", slog.Int("count", len(ids)))
				}
			}
		}
	}()
}
