/*

This file contains the table walker: a cursor-pagination helper that drains a remote
dynamic-field table into an in-memory ordered sequence.

The walker is pure sequencing. It never truncates silently (every continuation cursor
is chased), it tolerates per-entry resolution failures by logging and skipping the
single entry, and it does no retrying of its own.

*/

package walker

import (
	"context"
	"errors"
	"fmt"

	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/logger"
	"github.com/stakesight/stakesight/internal/types"

	"golang.org/x/sync/errgroup"
)

var walkLogger = logger.GetForComponent("table_walker")

var ErrInvalidPageSize = errors.New("page size must be positive")

// Result carries the resolved entries of one walk plus the count of entries
// excluded by per-entry failures. A non-zero Skipped means downstream totals
// are a documented under-count, not that the walk failed.
type Result[T any] struct {
	Items   []T
	Skipped int
}

// Drain pages through the table under parent until the node stops returning a
// continuation cursor, and returns the complete ordered entry list. A page
// fetch failure aborts the walk with the entries collected so far, so the
// caller can contain the failure at its own scope.
func Drain(ctx context.Context, client chain.ObjectClient, parent types.ObjectID, pageSize int) ([]chain.DynamicFieldEntry, error) {
	if pageSize <= 0 {
		return nil, ErrInvalidPageSize
	}

	var entries []chain.DynamicFieldEntry
	var cursor *string

	for {
		page, err := client.GetDynamicFields(ctx, parent, cursor, pageSize)
		if err != nil {
			return entries, fmt.Errorf("dynamic field page fetch failed for %s: %w", parent, err)
		}

		entries = append(entries, page.Entries...)

		if !page.HasMore || page.NextCursor == nil {
			break
		}
		// The next request must resume from the returned cursor, never restart.
		cursor = page.NextCursor

		walkLogger.Debug().
			Str("parent", string(parent)).
			Int("pageEntries", len(page.Entries)).
			Int("totalEntries", len(entries)).
			Msg("Fetched table page, continuing pagination")
	}

	return entries, nil
}

// Collect drains the table under parent and resolves every entry through
// resolve, fanning out up to concurrency resolutions at a time. A failed or
// malformed entry is logged and skipped; the rest of the walk proceeds so that
// downstream aggregation stays possible from a partial set.
func Collect[T any](ctx context.Context, client chain.ObjectClient, parent types.ObjectID, pageSize, concurrency int, resolve func(context.Context, chain.DynamicFieldEntry) (T, error)) (Result[T], error) {
	entries, err := Drain(ctx, client, parent, pageSize)
	if err != nil {
		return Result[T]{}, err
	}
	if len(entries) == 0 {
		return Result[T]{}, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	resolved := make([]*T, len(entries))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i, entry := range entries {
		i, entry := i, entry
		group.Go(func() error {
			item, err := resolve(groupCtx, entry)
			if err != nil {
				// Abandonment by the caller is not a per-entry failure.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				// Per-entry containment: exclude this entry, keep the walk alive.
				walkLogger.Warn().
					Err(err).
					Str("parent", string(parent)).
					Str("entry", string(entry.ObjectID)).
					Msg("Skipping table entry that failed to resolve")
				return nil
			}
			resolved[i] = &item
			return nil
		})
	}

	// Resolve errors are swallowed per entry; only context cancellation
	// surfaces through the group.
	if err := group.Wait(); err != nil {
		return Result[T]{}, err
	}

	result := Result[T]{Items: make([]T, 0, len(entries))}
	for _, item := range resolved {
		if item == nil {
			result.Skipped++
			continue
		}
		result.Items = append(result.Items, *item)
	}

	return result, nil
}
