package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MapLimit runs fn over items with at most limit concurrent workers.
// Results land in a preallocated slice indexed by input position, so output
// order always matches input order regardless of completion order.
// Per-item failures never cancel siblings; they are returned in the parallel
// errs slice and the result slot stays at its zero value.
func MapLimit[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))
	if len(items) == 0 {
		return results, errs
	}
	if limit <= 0 {
		limit = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; per-item errors are in errs
	return results, errs
}

// ForEachLimit is MapLimit for side-effect-only work.
func ForEachLimit[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) []error {
	_, errs := MapLimit(ctx, limit, items, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	})
	return errs
}

// FirstError returns the first non-nil error from a MapLimit errs slice.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
