package logging

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/s3-chunkproc/pkg/humanfmt"
)

// Event names emitted by the chunk processor.
const (
	EventCountResolved = "count_resolved"
	EventJobExhausted  = "job_exhausted"
	EventChunkComplete = "chunk_completed"
)

// JobProgress is a snapshot of one job's progress after an invocation.
type JobProgress struct {
	// Total is the cached number of items in the job.
	Total int
	// Handled is the number of items reported before this invocation.
	Handled int
	// Selected is the number of items reported by this invocation.
	Selected int
}

// Done returns the number of items reported so far, including this invocation.
func (p JobProgress) Done() int {
	return p.Handled + p.Selected
}

// Remaining returns how many items are left after this invocation.
func (p JobProgress) Remaining() int {
	if r := p.Total - p.Done(); r > 0 {
		return r
	}
	return 0
}

// Pct returns the progress percentage (0-100). A job with no items is complete.
func (p JobProgress) Pct() float64 {
	if p.Total <= 0 {
		return 100.0
	}
	return float64(p.Done()) * 100.0 / float64(p.Total)
}

// CompletionEvent helps build consistent completion log events.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	elapsed time.Duration
	fields  map[string]interface{}
}

// NewCompletionEvent creates a new completion event builder.
func NewCompletionEvent(log zerolog.Logger, event string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		elapsed: elapsed,
		fields:  make(map[string]interface{}),
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds a byte count under key and its human-readable form under
// key+"_human".
func (ce *CompletionEvent) Bytes(key string, n int64) *CompletionEvent {
	ce.fields[key] = n
	ce.fields[key+"_human"] = humanfmt.Bytes(n)
	return ce
}

// Bool adds a bool field.
func (ce *CompletionEvent) Bool(key string, val bool) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Progress adds total, already_handled, selected, remaining and progress_pct.
func (ce *CompletionEvent) Progress(p JobProgress) *CompletionEvent {
	ce.fields["total"] = p.Total
	ce.fields["already_handled"] = p.Handled
	ce.fields["selected"] = p.Selected
	ce.fields["remaining"] = p.Remaining()
	ce.fields["progress_pct"] = p.Pct()
	return ce
}

// Log emits the completion event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the completion event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Int64("duration_ms", ce.elapsed.Milliseconds()).
		Str("duration", humanfmt.Duration(ce.elapsed))
	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// ChunkComplete starts a chunk completion event.
func ChunkComplete(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, EventChunkComplete, elapsed)
}

// CountResolved starts a count resolution event.
func CountResolved(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, EventCountResolved, elapsed)
}

// JobExhausted starts an event for an invocation that found nothing left to do.
func JobExhausted(log zerolog.Logger, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, EventJobExhausted, elapsed)
}
