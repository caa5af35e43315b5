package s3fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/eunmann/s3-chunkproc/internal/logctx"
	"github.com/eunmann/s3-chunkproc/pkg/inventory"
	"github.com/eunmann/s3-chunkproc/pkg/lister"
)

// ErrBucketMismatch indicates a listing was requested for a bucket other
// than the one the inventory describes.
var ErrBucketMismatch = errors.New("bucket does not match inventory source bucket")

// InventoryLister lists objects from a fixed S3 Inventory snapshot. Every
// call walks the same data files in manifest order, so the enumeration is
// stable for as long as the manifest is unchanged, regardless of writes to
// the source bucket.
type InventoryLister struct {
	client      *Client
	manifestURI string

	mu       sync.Mutex
	manifest *Manifest
}

var _ lister.Lister = (*InventoryLister)(nil)

// NewInventoryLister creates a lister over the inventory whose manifest.json
// lives at manifestURI (s3://bucket/key). The manifest is fetched on first use.
func NewInventoryLister(client *Client, manifestURI string) (*InventoryLister, error) {
	if _, _, err := ParseS3URI(manifestURI); err != nil {
		return nil, fmt.Errorf("inventory manifest: %w", err)
	}
	return &InventoryLister{client: client, manifestURI: manifestURI}, nil
}

func (l *InventoryLister) loadManifest(ctx context.Context) (*Manifest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.manifest != nil {
		return l.manifest, nil
	}

	bucket, key, err := ParseS3URI(l.manifestURI)
	if err != nil {
		return nil, err
	}
	m, err := l.client.FetchManifest(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	log := logctx.FromContext(ctx)
	log.Debug().
		Str("manifest", l.manifestURI).
		Int("files", len(m.Files)).
		Str("format", m.FileFormat).
		Msg("loaded inventory manifest")

	l.manifest = m
	return m, nil
}

// Count walks the whole snapshot and counts matching objects.
func (l *InventoryLister) Count(ctx context.Context, bucket, prefix string) (int, error) {
	it, err := l.List(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n, err := lister.CountAll(ctx, it)
	if err != nil {
		return 0, fmt.Errorf("count inventory %s: %w", l.manifestURI, err)
	}
	return n, nil
}

// List returns an iterator over snapshot objects under prefix. Data files
// are opened one at a time as the iterator advances.
func (l *InventoryLister) List(ctx context.Context, bucket, prefix string) (lister.Iterator, error) {
	m, err := l.loadManifest(ctx)
	if err != nil {
		return nil, err
	}

	if m.SourceBucket != "" {
		source, err := m.SourceBucketName()
		if err != nil {
			return nil, fmt.Errorf("inventory source bucket: %w", err)
		}
		if source != bucket {
			return nil, fmt.Errorf("%w: requested %q, inventory covers %q", ErrBucketMismatch, bucket, source)
		}
	}

	dest, err := m.DestinationBucketName()
	if err != nil {
		return nil, fmt.Errorf("inventory destination bucket: %w", err)
	}

	return &inventoryIterator{
		client:   l.client,
		manifest: m,
		destBkt:  dest,
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

type inventoryIterator struct {
	client   *Client
	manifest *Manifest
	destBkt  string
	bucket   string
	prefix   string

	fileIdx int
	reader  inventory.Reader
}

func (it *inventoryIterator) Next(ctx context.Context) (lister.ItemRef, error) {
	for {
		if err := ctx.Err(); err != nil {
			return lister.ItemRef{}, err
		}

		if it.reader == nil {
			if it.fileIdx >= len(it.manifest.Files) {
				return lister.ItemRef{}, io.EOF
			}
			r, err := it.open(ctx, it.manifest.Files[it.fileIdx])
			if err != nil {
				return lister.ItemRef{}, err
			}
			it.reader = r
			it.fileIdx++
		}

		row, err := it.reader.Next()
		if errors.Is(err, io.EOF) {
			it.reader.Close()
			it.reader = nil
			continue
		}
		if err != nil {
			return lister.ItemRef{}, fmt.Errorf("read inventory file %d: %w", it.fileIdx-1, err)
		}

		if row.Bucket != "" && row.Bucket != it.bucket {
			continue
		}
		if !strings.HasPrefix(row.Key, it.prefix) || lister.IsDirectoryMarker(row.Key) {
			continue
		}
		return lister.ItemRef{Key: row.Key, Size: row.Size}, nil
	}
}

func (it *inventoryIterator) open(ctx context.Context, file ManifestFile) (inventory.Reader, error) {
	body, err := it.client.StreamObject(ctx, it.destBkt, file.Key)
	if err != nil {
		return nil, err
	}

	switch it.manifest.FormatOf(file) {
	case FormatParquet:
		r, err := inventory.NewParquetReaderFromStream(body)
		if err != nil {
			return nil, fmt.Errorf("open inventory file %s: %w", file.Key, err)
		}
		return r, nil
	default:
		r, err := inventory.NewCSVReaderFromStream(body, file.Key, it.manifest.Columns())
		if err != nil {
			return nil, fmt.Errorf("open inventory file %s: %w", file.Key, err)
		}
		return r, nil
	}
}

func (it *inventoryIterator) Close() error {
	if it.reader == nil {
		return nil
	}
	err := it.reader.Close()
	it.reader = nil
	return err
}
