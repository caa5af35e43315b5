// Package lister defines the object listing abstraction consumed by the
// chunk processor: a lazy, forward-only sequence of object references under
// a bucket and key prefix, with directory markers removed.
//
// Implementations must enumerate a given bucket/prefix in the same order on
// every call. Resumption is positional, so an unstable order silently skips
// or repeats objects.
package lister

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Separator is the path separator that marks directory placeholder keys.
const Separator = "/"

// ItemRef references one listed object.
type ItemRef struct {
	// Key is the full object key.
	Key string

	// Size is the object size in bytes, 0 when unknown.
	Size int64
}

// Iterator is a forward-only sequence of ItemRefs.
type Iterator interface {
	// Next returns the next item. Returns io.EOF when the sequence is exhausted.
	Next(ctx context.Context) (ItemRef, error)

	// Close releases resources held by the iterator.
	Close() error
}

// Lister enumerates non-directory objects under a prefix.
type Lister interface {
	// Count returns the number of non-directory objects under prefix.
	Count(ctx context.Context, bucket, prefix string) (int, error)

	// List returns an iterator over non-directory objects under prefix.
	List(ctx context.Context, bucket, prefix string) (Iterator, error)
}

// IsDirectoryMarker reports whether key is a pseudo-folder placeholder.
func IsDirectoryMarker(key string) bool {
	return strings.HasSuffix(key, Separator)
}

// CountAll drains it and returns the number of items seen.
func CountAll(ctx context.Context, it Iterator) (int, error) {
	n := 0
	for {
		if _, err := it.Next(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		n++
	}
}

// Skip advances it past n items. It returns the number of items actually
// skipped, which is less than n only when the sequence ended first.
func Skip(ctx context.Context, it Iterator, n int) (int, error) {
	for i := 0; i < n; i++ {
		if _, err := it.Next(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return i, nil
			}
			return i, fmt.Errorf("skip item %d: %w", i, err)
		}
	}
	return n, nil
}

// Take reads up to n items from it, calling fn for each one in order.
// It stops at the first fn error without reading further.
func Take(ctx context.Context, it Iterator, n int, fn func(ItemRef) error) (int, error) {
	taken := 0
	for taken < n {
		item, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return taken, nil
			}
			return taken, fmt.Errorf("read item %d: %w", taken, err)
		}
		if err := fn(item); err != nil {
			return taken, err
		}
		taken++
	}
	return taken, nil
}
