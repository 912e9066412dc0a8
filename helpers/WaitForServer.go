package helpers

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// HealthChecker is anything that can check a server's /health route.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// WaitForServer polls the health check until it succeeds, ctx ends, or 50
// attempts have failed.
func WaitForServer(ctx context.Context, c HealthChecker) error {
	var err error
	for i := 0; i < 50; i++ {
		if err = c.Health(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "server did not become healthy")
}
