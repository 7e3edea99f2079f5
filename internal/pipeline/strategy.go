package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// strategy is one step of an ordered fallback chain.
type strategy[T any] struct {
	name string
	run  func(ctx context.Context) (T, error)
}

// firstSuccess runs strategies in order and returns the first result without error.
// It stops early when ctx is done. The returned error joins every failure.
func firstSuccess[T any](ctx context.Context, strategies []strategy[T]) (T, string, error) {
	var zero T
	var errs []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		v, err := s.run(ctx)
		if err == nil {
			return v, s.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no strategies configured"))
	}
	return zero, "", errors.Join(errs...)
}
