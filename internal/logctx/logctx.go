// Package logctx carries a per-invocation logger through context.Context.
//
// The invocation entry point attaches a logger enriched with the job's
// identity; everything below it extracts that logger instead of using the
// global one:
//
//	ctx = logctx.WithJob(ctx, logctx.Job{InvocationID: id, PartitionKey: pk})
//	log := logctx.FromContext(ctx)
package logctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eunmann/s3-chunkproc/pkg/logging"
)

// loggerKey is the private key type for storing loggers in context.
type loggerKey struct{}

// Job holds the identity fields attached to every log line of an invocation.
type Job struct {
	InvocationID string
	PartitionKey string
	Bucket       string
	Prefix       string
	Table        string
}

// WithLogger returns a new context with the given logger attached.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext extracts the logger from the context. If the context is nil
// or does not contain a logger, the global logger from package logging is
// returned.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return logger
		}
	}
	return *logging.L()
}

// WithStr returns a new context with a logger that has the specified string field added.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt returns a new context with a logger that has the specified int field added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithJob returns a new context whose logger carries the job identity.
// Empty fields are omitted.
func WithJob(ctx context.Context, job Job) context.Context {
	lc := FromContext(ctx).With()
	for _, f := range []struct{ key, value string }{
		{"invocation_id", job.InvocationID},
		{"partition_key", job.PartitionKey},
		{"bucket", job.Bucket},
		{"prefix", job.Prefix},
		{"table", job.Table},
	} {
		if f.value != "" {
			lc = lc.Str(f.key, f.value)
		}
	}
	return WithLogger(ctx, lc.Logger())
}
