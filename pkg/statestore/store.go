// Package statestore defines the key-value state store that holds all
// persisted job progress: one Count record per partition key and one Report
// record per processed object.
//
// Records are written once and never updated or deleted. There is no
// conditional write; callers must ensure a single active writer per
// partition key.
package statestore

import (
	"context"
	"time"
)

// Kind tags a state record.
type Kind string

const (
	// KindCount marks the cached total item count of a job.
	KindCount Kind = "Count"
	// KindReport marks one processed item.
	KindReport Kind = "Report"
)

// Record is one persisted state entry.
type Record struct {
	PartitionKey string
	Kind         Kind
	Timestamp    time.Time
	Message      string
}

// QueryResult is the outcome of a query by partition key and kind.
type QueryResult struct {
	// Count is the number of matching records.
	Count int

	// Messages holds the matching records' messages. It is nil when the query
	// was issued with CountOnly.
	Messages []string
}

// Store is the state store capability set.
type Store interface {
	// QueryByKind returns the records of kind stored under partitionKey.
	QueryByKind(ctx context.Context, table, partitionKey string, kind Kind, opts ...QueryOption) (QueryResult, error)

	// Put writes rec unconditionally.
	Put(ctx context.Context, table string, rec Record) error
}

// QueryOptions holds resolved query options. Implementations call
// ApplyQueryOptions to read them.
type QueryOptions struct {
	CountOnly bool
}

// QueryOption configures a query.
type QueryOption func(*QueryOptions)

// CountOnly asks the store to return only the match count.
func CountOnly() QueryOption {
	return func(o *QueryOptions) { o.CountOnly = true }
}

// ApplyQueryOptions resolves opts.
func ApplyQueryOptions(opts ...QueryOption) QueryOptions {
	var o QueryOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
