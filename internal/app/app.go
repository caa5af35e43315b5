// Package app wires configuration into a ready chunk processor and runs
// invocations for the CLI and Lambda entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"

	"github.com/eunmann/s3-chunkproc/internal/config"
	"github.com/eunmann/s3-chunkproc/internal/logctx"
	"github.com/eunmann/s3-chunkproc/pkg/chunkproc"
	"github.com/eunmann/s3-chunkproc/pkg/jobinput"
	"github.com/eunmann/s3-chunkproc/pkg/lister"
	"github.com/eunmann/s3-chunkproc/pkg/s3fetch"
	"github.com/eunmann/s3-chunkproc/pkg/statestore"
	"github.com/eunmann/s3-chunkproc/pkg/statestore/dynamostore"
	"github.com/eunmann/s3-chunkproc/pkg/statestore/sqlitestore"
)

// App owns a Processor and the resources behind it.
type App struct {
	proc    *chunkproc.Processor
	closers []io.Closer
}

// New builds the lister and state store selected by cfg. AWS configuration
// is loaded from the default chain and shared by the S3 and DynamoDB clients.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	var closers []io.Closer

	var store statestore.Store
	switch cfg.StateBackend {
	case config.BackendSQLite:
		s, err := sqlitestore.Open(cfg.StateSQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
		closers = append(closers, s)
	default:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		store = dynamostore.NewWithConfig(c)
	}

	c, err := loadAWS()
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	client := s3fetch.NewClientWithConfig(c)

	var l lister.Lister = client
	if cfg.ListingSource == config.SourceInventory {
		inv, err := s3fetch.NewInventoryLister(client, cfg.InventoryManifestURI)
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		l = inv
	}

	a, err := NewWith(l, store, cfg.ChunkSize)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// NewWith builds an App over existing collaborators.
func NewWith(l lister.Lister, s statestore.Store, chunkSize int, opts ...chunkproc.Option) (*App, error) {
	proc, err := chunkproc.New(l, s, chunkSize, opts...)
	if err != nil {
		return nil, err
	}
	return &App{proc: proc}, nil
}

// Processor returns the underlying processor.
func (a *App) Processor() *chunkproc.Processor {
	return a.proc
}

// Invoke decodes ev, runs one invocation and returns the response value:
// the list of selected paths or a sentinel string. An empty invocationID is
// replaced by a random one.
func (a *App) Invoke(ctx context.Context, ev jobinput.Event, invocationID string) (any, error) {
	in, err := jobinput.FromEvent(ev)
	if err != nil {
		return nil, err
	}
	ctx = withJob(ctx, in, invocationID)
	log := logctx.FromContext(ctx)

	start := time.Now()
	log.Info().Msg("START")
	res, err := a.proc.Process(ctx, in)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("END")
		return nil, err
	}
	log.Info().Int("selected", len(res.Items)).Dur("duration", time.Since(start)).Msg("END")
	return res.Output(), nil
}

// Status reads the job's progress without writing.
func (a *App) Status(ctx context.Context, ev jobinput.Event) (chunkproc.Status, error) {
	in, err := jobinput.FromEvent(ev)
	if err != nil {
		return chunkproc.Status{}, err
	}
	return a.proc.Status(withJob(ctx, in, ""), in)
}

func withJob(ctx context.Context, in jobinput.Input, invocationID string) context.Context {
	if invocationID == "" {
		invocationID = uuid.NewString()
	}
	return logctx.WithJob(ctx, logctx.Job{
		InvocationID: invocationID,
		PartitionKey: in.PartitionKey(),
		Bucket:       in.Bucket,
		Prefix:       in.Prefix,
		Table:        in.Table,
	})
}

// Close releases owned resources.
func (a *App) Close() error {
	return closeAll(a.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
