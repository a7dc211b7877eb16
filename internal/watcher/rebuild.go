package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// RebuildFunc rebuilds the index after the given changes.
type RebuildFunc func(ctx context.Context, changes []FileEvent) error

// Rebuild calls fn once per debounced batch until events is closed or ctx is
// done. Batches that queue up while fn runs are merged into one call. A
// failed rebuild is logged and watching continues.
func Rebuild(ctx context.Context, events <-chan []FileEvent, fn RebuildFunc) error {
	for {
		var batch []FileEvent
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-events:
			if !ok {
				return nil
			}
			batch = b
		}

		batch, open := drain(events, batch)
		if len(batch) > 0 {
			slog.Info("input_changed", slog.Int("changes", len(batch)))
			if err := fn(ctx, batch); err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					return ctx.Err()
				}
				slog.Warn("rebuild_failed", slog.String("error", err.Error()))
			}
		}
		if !open {
			return nil
		}
	}
}

// Watch starts w on path and feeds its batches to Rebuild until ctx is done
// or the watcher closes its events. A watcher that fails, at start or later,
// ends Watch with that error instead of leaving it waiting on a silent
// channel.
func Watch(ctx context.Context, w Watcher, path string, fn RebuildFunc) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	go func() {
		if err := w.Start(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
			cancel(fmt.Errorf("watch %s: %w", path, err))
		}
	}()

	err := Rebuild(ctx, w.Events(), fn)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return err
}

// drain appends already queued batches without blocking, keeping the latest
// event per path.
func drain(events <-chan []FileEvent, batch []FileEvent) ([]FileEvent, bool) {
	open := true
	for more := true; more; {
		select {
		case b, ok := <-events:
			if !ok {
				open, more = false, false
				break
			}
			batch = append(batch, b...)
		default:
			more = false
		}
	}

	seen := make(map[string]int, len(batch))
	merged := batch[:0]
	for _, e := range batch {
		if i, ok := seen[e.Path]; ok {
			merged[i] = e
			continue
		}
		seen[e.Path] = len(merged)
		merged = append(merged, e)
	}
	return merged, open
}
