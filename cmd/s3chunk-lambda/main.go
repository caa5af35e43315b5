// Command s3chunk-lambda is the AWS Lambda entry point. Each invocation
// returns the next chunk of "bucket/key" paths for the job in the event, or
// a sentinel string once the job is exhausted.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/eunmann/s3-chunkproc/internal/app"
	"github.com/eunmann/s3-chunkproc/internal/config"
	"github.com/eunmann/s3-chunkproc/pkg/jobinput"
	"github.com/eunmann/s3-chunkproc/pkg/logging"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logging.L().Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(cfg.LogDebug, cfg.LogHuman)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logging.L().Fatal().Err(err).Msg("initialize")
	}
	defer a.Close()

	logging.L().Info().
		Int("chunk_size", cfg.ChunkSize).
		Str("state_backend", cfg.StateBackend).
		Str("listing_source", cfg.ListingSource).
		Msg("handler ready")

	lambda.Start(func(ctx context.Context, ev jobinput.Event) (any, error) {
		var requestID string
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			requestID = lc.AwsRequestID
		}
		return a.Invoke(ctx, ev, requestID)
	})
}
