// Package chunkproc processes a large object listing in bounded chunks
// across short-lived, stateless invocations.
//
// Each invocation resolves the job's total item count (cold-counting and
// caching it in the state store the first time), counts the Report records
// already written, and then streams the listing: it skips that many items
// and records and returns up to chunk-size more. Resumption is purely
// positional, so the lister must enumerate a prefix in a stable order.
//
// A Processor assumes at most one active invocation per partition key.
// Concurrent invocations of the same job may report overlapping slices or
// write a second Count record, which later surfaces as ErrDuplicateCount.
package chunkproc

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/eunmann/s3-chunkproc/internal/logctx"
	"github.com/eunmann/s3-chunkproc/pkg/jobinput"
	"github.com/eunmann/s3-chunkproc/pkg/lister"
	"github.com/eunmann/s3-chunkproc/pkg/logging"
	"github.com/eunmann/s3-chunkproc/pkg/statestore"
)

// Output sentinels.
const (
	// SentinelHandledAllReports is returned when the Report count already
	// covers the cached total, without listing.
	SentinelHandledAllReports = "Handled all reports"
	// SentinelAllHandled is returned when the listing yields no item past
	// the already-handled offset.
	SentinelAllHandled = "All handled"
)

// Result is the outcome of one invocation.
type Result struct {
	// Items are the "bucket/key" paths selected and reported by this
	// invocation, in listing order.
	Items []string

	// Sentinel is set when Items is empty.
	Sentinel string

	// Progress describes the job after this invocation.
	Progress logging.JobProgress
}

// Exhausted reports whether the invocation found nothing left to process.
func (r Result) Exhausted() bool {
	return len(r.Items) == 0
}

// Output returns the invocation response: the sentinel string when the job
// is exhausted, the selected paths otherwise.
func (r Result) Output() any {
	if r.Exhausted() {
		if r.Sentinel == "" {
			return SentinelAllHandled
		}
		return r.Sentinel
	}
	return r.Items
}

// Counter performs a cold count of the job's items.
type Counter func(ctx context.Context) (int, error)

// Processor runs invocations against one lister and one state store.
type Processor struct {
	lister    lister.Lister
	store     statestore.Store
	chunkSize int
	now       func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock overrides the clock used to timestamp state records. The
// timestamp is the DynamoDB range key, so records of one job written at the
// same instant replace each other there; now must advance between calls.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor returning at most chunkSize items per invocation.
func New(l lister.Lister, s statestore.Store, chunkSize int, opts ...Option) (*Processor, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	p := &Processor{
		lister:    l,
		store:     s,
		chunkSize: chunkSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ChunkSize returns the maximum number of items per invocation.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Process runs one invocation for in. Every returned item has been recorded
// as a Report before Process returns. Collaborator errors are returned
// without retry; rerunning the invocation resumes from the recorded state.
func (p *Processor) Process(ctx context.Context, in jobinput.Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	pk := in.PartitionKey()
	log := logctx.FromContext(ctx)
	log.Info().Int("chunk_size", p.chunkSize).Msg("invocation started")

	total, err := p.getOrStoreCount(ctx, in.Table, pk, func(ctx context.Context) (int, error) {
		return p.lister.Count(ctx, in.Bucket, in.Prefix)
	})
	if err != nil {
		return Result{}, err
	}

	handled, err := p.countReports(ctx, in.Table, pk)
	if err != nil {
		return Result{}, err
	}

	progress := logging.JobProgress{Total: total, Handled: handled}
	if handled >= total {
		logging.JobExhausted(log, time.Since(start)).Progress(progress).Log("all reports handled")
		return Result{Sentinel: SentinelHandledAllReports, Progress: progress}, nil
	}

	// Never report past the cached total, even if objects were added since.
	limit := min(p.chunkSize, total-handled)
	items, size, err := p.fetchNextChunk(ctx, in.Bucket, in.Prefix, limit, handled, func(ctx context.Context, fullPath string) error {
		return p.storeReport(ctx, in.Table, pk, fullPath)
	})
	progress.Selected = len(items)
	if err != nil {
		logging.ChunkComplete(log, time.Since(start)).Progress(progress).Bool("failed", true).Log("chunk aborted")
		return Result{}, err
	}

	res := Result{Items: items, Progress: progress}
	if len(items) == 0 {
		res.Sentinel = SentinelAllHandled
	}
	logging.ChunkComplete(log, time.Since(start)).Progress(progress).Bytes("selected_bytes", size).Log("invocation finished")
	return res, nil
}

// getOrStoreCount returns the cached item count for pk, running count and
// caching its result when no Count record exists yet.
func (p *Processor) getOrStoreCount(ctx context.Context, table, pk string, count Counter) (int, error) {
	start := time.Now()
	log := logctx.FromContext(ctx)

	res, err := p.store.QueryByKind(ctx, table, pk, statestore.KindCount)
	if err != nil {
		return 0, fmt.Errorf("query cached count: %w", err)
	}

	switch res.Count {
	case 0:
		total, err := count(ctx)
		if err != nil {
			return 0, fmt.Errorf("cold count: %w", err)
		}
		err = p.store.Put(ctx, table, statestore.Record{
			PartitionKey: pk,
			Kind:         statestore.KindCount,
			Timestamp:    p.now().UTC(),
			Message:      strconv.Itoa(total),
		})
		if err != nil {
			return 0, fmt.Errorf("store count: %w", err)
		}
		logging.CountResolved(log, time.Since(start)).Bool("cache_hit", false).Int("total", total).Log("cold count stored")
		return total, nil

	case 1:
		if len(res.Messages) != 1 {
			return 0, fmt.Errorf("%w: count query returned %d messages", ErrInvalidCount, len(res.Messages))
		}
		total, err := parseCount(res.Messages[0])
		if err != nil {
			return 0, err
		}
		logging.CountResolved(log, time.Since(start)).Bool("cache_hit", true).Int("total", total).LogDebug("cached count found")
		return total, nil

	default:
		return 0, &DuplicateCountError{Table: table, PartitionKey: pk, Found: res.Count}
	}
}

func parseCount(msg string) (int, error) {
	n, err := strconv.Atoi(msg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, msg)
	}
	return n, nil
}

// countReports returns the number of Report records written for pk.
func (p *Processor) countReports(ctx context.Context, table, pk string) (int, error) {
	res, err := p.store.QueryByKind(ctx, table, pk, statestore.KindReport, statestore.CountOnly())
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return res.Count, nil
}

func (p *Processor) storeReport(ctx context.Context, table, pk, fullPath string) error {
	err := p.store.Put(ctx, table, statestore.Record{
		PartitionKey: pk,
		Kind:         statestore.KindReport,
		Timestamp:    p.now().UTC(),
		Message:      fullPath,
	})
	if err != nil {
		return fmt.Errorf("store report %s: %w", fullPath, err)
	}
	return nil
}

// fetchNextChunk streams the listing, skips offset items and passes up to
// limit of the following items to report, in order, as "bucket/key". An item
// is appended to the result only after report succeeds. It also returns the
// summed size of the returned items, where the lister knows it.
func (p *Processor) fetchNextChunk(ctx context.Context, bucket, prefix string, limit, offset int, report func(context.Context, string) error) ([]string, int64, error) {
	log := logctx.FromContext(ctx)

	it, err := p.lister.List(ctx, bucket, prefix)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	defer it.Close()

	skipped, err := lister.Skip(ctx, it, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	if skipped < offset {
		log.Warn().
			Int("offset", offset).
			Int("listed", skipped).
			Msg("listing is shorter than the number of handled items")
		return nil, 0, nil
	}

	items := make([]string, 0, limit)
	var size int64
	_, err = lister.Take(ctx, it, limit, func(item lister.ItemRef) error {
		fullPath := bucket + "/" + item.Key
		if err := report(ctx, fullPath); err != nil {
			return err
		}
		items = append(items, fullPath)
		size += item.Size
		return nil
	})
	if err != nil {
		return items, size, fmt.Errorf("select next chunk: %w", err)
	}
	return items, size, nil
}

// Status is a read-only view of a job's progress.
type Status struct {
	PartitionKey string `json:"partitionKey"`
	Total        int    `json:"total"`
	Handled      int    `json:"handled"`
	Remaining    int    `json:"remaining"`
	CountCached  bool   `json:"countCached"`
}

// Status reads the job's cached count and Report count. It never writes and
// never cold-counts; Total is 0 and CountCached false until the first
// invocation has stored the count.
func (p *Processor) Status(ctx context.Context, in jobinput.Input) (Status, error) {
	if err := in.Validate(); err != nil {
		return Status{}, err
	}
	pk := in.PartitionKey()
	st := Status{PartitionKey: pk}

	res, err := p.store.QueryByKind(ctx, in.Table, pk, statestore.KindCount)
	if err != nil {
		return Status{}, fmt.Errorf("query cached count: %w", err)
	}
	switch {
	case res.Count > 1:
		return Status{}, &DuplicateCountError{Table: in.Table, PartitionKey: pk, Found: res.Count}
	case res.Count == 1:
		if len(res.Messages) != 1 {
			return Status{}, fmt.Errorf("%w: count query returned %d messages", ErrInvalidCount, len(res.Messages))
		}
		if st.Total, err = parseCount(res.Messages[0]); err != nil {
			return Status{}, err
		}
		st.CountCached = true
	}

	if st.Handled, err = p.countReports(ctx, in.Table, pk); err != nil {
		return Status{}, err
	}
	st.Remaining = max(st.Total-st.Handled, 0)
	return st, nil
}
