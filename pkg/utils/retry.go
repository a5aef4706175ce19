package utils

import (
	"context"
	"time"

	"github.com/agreet/backend/internal/models"
)

// Retry runs fn up to attempts times with a fixed delay between tries.
// Structural domain errors are definitive outcomes and are returned
// immediately; only transient failures are retried. Callers must only pass
// idempotent operations.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if models.IsDomainErr(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
