package s3fetch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eunmann/s3-chunkproc/pkg/inventory"
)

// FileFormat is the encoding of one inventory data file.
type FileFormat int

const (
	// FormatCSV is CSV, optionally gzip-compressed.
	FormatCSV FileFormat = iota
	// FormatParquet is Apache Parquet.
	FormatParquet
)

func (f FileFormat) String() string {
	if f == FormatParquet {
		return "Parquet"
	}
	return "CSV"
}

// Manifest is an AWS S3 Inventory manifest.json file.
type Manifest struct {
	SourceBucket      string         `json:"sourceBucket"`
	DestinationBucket string         `json:"destinationBucket"`
	Version           string         `json:"version"`
	CreationTimestamp string         `json:"creationTimestamp"`
	FileFormat        string         `json:"fileFormat"`
	FileSchema        string         `json:"fileSchema"`
	Files             []ManifestFile `json:"files"`
}

// ManifestFile is a single inventory data file listed in the manifest.
type ManifestFile struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	MD5Checksum string `json:"MD5checksum"`
}

// ParseManifest decodes and validates a manifest.json.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.DestinationBucket == "" {
		return errors.New("manifest missing destinationBucket")
	}
	if len(m.Files) == 0 {
		return errors.New("manifest has no files")
	}
	if m.FileFormat != "" {
		switch strings.ToUpper(m.FileFormat) {
		case "CSV", "PARQUET":
		default:
			return fmt.Errorf("unsupported file format: %s (supported: CSV, Parquet)", m.FileFormat)
		}
	}
	if !strings.EqualFold(m.FileFormat, "Parquet") {
		if inventory.ColumnsFromSchema(m.FileSchema).Key < 0 {
			return fmt.Errorf("column %q not found in schema: %s", "Key", m.FileSchema)
		}
	}
	return nil
}

// FormatOf returns the format of file. The manifest's fileFormat wins;
// otherwise the key's extension decides, defaulting to CSV.
func (m *Manifest) FormatOf(file ManifestFile) FileFormat {
	switch strings.ToUpper(m.FileFormat) {
	case "CSV":
		return FormatCSV
	case "PARQUET":
		return FormatParquet
	}
	if strings.HasSuffix(strings.ToLower(file.Key), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// Columns returns the CSV column positions declared by fileSchema.
func (m *Manifest) Columns() inventory.Columns {
	return inventory.ColumnsFromSchema(m.FileSchema)
}

// SourceBucketName returns the inventoried bucket, normalizing an ARN.
func (m *Manifest) SourceBucketName() (string, error) {
	return ParseBucketIdentifier(m.SourceBucket)
}

// DestinationBucketName returns the bucket holding the data files,
// normalizing an ARN.
func (m *Manifest) DestinationBucketName() (string, error) {
	return ParseBucketIdentifier(m.DestinationBucket)
}

// ParseBucketIdentifier extracts the bucket name from either a plain bucket
// name ("my-bucket") or an S3 bucket ARN ("arn:aws:s3:::my-bucket").
func ParseBucketIdentifier(bucketOrARN string) (string, error) {
	if bucketOrARN == "" {
		return "", errors.New("empty bucket identifier")
	}
	if strings.HasPrefix(bucketOrARN, "arn:") {
		return parseBucketARN(bucketOrARN)
	}
	if strings.Contains(bucketOrARN, "://") {
		return "", fmt.Errorf("invalid bucket identifier %q: looks like a URI, use ParseS3URI instead", bucketOrARN)
	}
	return bucketOrARN, nil
}

// parseBucketARN takes the bucket from arn:partition:s3:::bucket[/path].
func parseBucketARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 6 {
		return "", fmt.Errorf("invalid ARN %q: expected at least 6 colon-separated parts", arn)
	}
	if parts[2] != "s3" {
		return "", fmt.Errorf("invalid S3 ARN %q: service must be 's3', got %q", arn, parts[2])
	}

	resource := strings.Join(parts[5:], ":")
	if idx := strings.Index(resource, "/"); idx >= 0 {
		resource = resource[:idx]
	}
	if resource == "" {
		return "", fmt.Errorf("invalid S3 ARN %q: missing bucket name", arn)
	}
	return resource, nil
}

// ParseS3URI splits s3://bucket/key into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	bucket, key, _ = strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	if bucket == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}
	return bucket, key, nil
}
