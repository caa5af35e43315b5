package lister

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Lister over a fixed set of keys per bucket.
// Keys are enumerated in ascending byte order, matching S3 general-purpose
// bucket listing order. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	buckets map[string][]string

	countCalls int
	listCalls  int
}

// NewMemory creates an empty in-memory lister.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string][]string)}
}

// Put adds keys to bucket. Directory markers may be added and are filtered
// on listing.
func (m *Memory) Put(bucket string, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buckets[bucket] = append(m.buckets[bucket], keys...)
	sort.Strings(m.buckets[bucket])
}

// Calls returns how many times Count and List have been called.
func (m *Memory) Calls() (count, list int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countCalls, m.listCalls
}

// Count implements Lister.
func (m *Memory) Count(ctx context.Context, bucket, prefix string) (int, error) {
	m.mu.Lock()
	m.countCalls++
	m.mu.Unlock()

	return CountAll(ctx, m.iterator(bucket, prefix))
}

// List implements Lister.
func (m *Memory) List(_ context.Context, bucket, prefix string) (Iterator, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	return m.iterator(bucket, prefix), nil
}

func (m *Memory) iterator(bucket, prefix string) *sliceIterator {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []ItemRef
	for _, k := range m.buckets[bucket] {
		if strings.HasPrefix(k, prefix) && !IsDirectoryMarker(k) {
			items = append(items, ItemRef{Key: k})
		}
	}
	return &sliceIterator{items: items}
}

type sliceIterator struct {
	items []ItemRef
	pos   int
}

func (it *sliceIterator) Next(ctx context.Context) (ItemRef, error) {
	if err := ctx.Err(); err != nil {
		return ItemRef{}, err
	}
	if it.pos >= len(it.items) {
		return ItemRef{}, io.EOF
	}
	item := it.items[it.pos]
	it.pos++
	return item, nil
}

func (it *sliceIterator) Close() error { return nil }
