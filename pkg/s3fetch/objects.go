package s3fetch

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eunmann/s3-chunkproc/pkg/lister"
)

var _ lister.Lister = (*Client)(nil)

// Count pages through ListObjectsV2 and counts non-directory objects.
func (c *Client) Count(ctx context.Context, bucket, prefix string) (int, error) {
	it, err := c.List(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n, err := lister.CountAll(ctx, it)
	if err != nil {
		return 0, fmt.Errorf("count s3://%s/%s: %w", bucket, prefix, err)
	}
	return n, nil
}

// List returns a lazy iterator over ListObjectsV2 results. Pages are fetched
// only as the caller advances, in the key order S3 returns.
func (c *Client) List(ctx context.Context, bucket, prefix string) (lister.Iterator, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	return &pageIterator{
		bucket:    bucket,
		paginator: s3.NewListObjectsV2Paginator(c.s3Client, input),
	}, nil
}

type pageIterator struct {
	bucket    string
	paginator *s3.ListObjectsV2Paginator
	page      []types.Object
	pos       int
}

func (it *pageIterator) Next(ctx context.Context) (lister.ItemRef, error) {
	for {
		for it.pos < len(it.page) {
			obj := it.page[it.pos]
			it.pos++
			key := aws.ToString(obj.Key)
			if key == "" || lister.IsDirectoryMarker(key) {
				continue
			}
			return lister.ItemRef{Key: key, Size: aws.ToInt64(obj.Size)}, nil
		}

		if !it.paginator.HasMorePages() {
			return lister.ItemRef{}, io.EOF
		}
		out, err := it.paginator.NextPage(ctx)
		if err != nil {
			return lister.ItemRef{}, fmt.Errorf("list objects in %s: %w", it.bucket, err)
		}
		it.page = out.Contents
		it.pos = 0
	}
}

func (it *pageIterator) Close() error {
	it.page = nil
	return nil
}
