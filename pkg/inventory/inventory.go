// Package inventory streams object rows out of AWS S3 Inventory files
// (CSV, gzip-compressed CSV and Parquet).
package inventory

import "strings"

// Row is one object listed in an inventory file.
type Row struct {
	// Bucket is the source bucket, empty when the file has no bucket column.
	Bucket string

	// Key is the decoded object key.
	Key string

	// Size is the object size in bytes, 0 when unknown.
	Size int64
}

// Reader is the unified interface for reading inventory files.
type Reader interface {
	// Next returns the next row. Returns io.EOF when all rows have been read.
	Next() (Row, error)

	// Close releases resources associated with the reader.
	Close() error
}

// Columns locates fields in an inventory file. A negative index means the
// column is absent.
type Columns struct {
	Bucket int
	Key    int
	Size   int
}

// ColumnsFromSchema resolves column positions from a comma-separated schema
// such as "Bucket, Key, Size, LastModifiedDate". Matching is case-insensitive.
func ColumnsFromSchema(schema string) Columns {
	cols := Columns{Bucket: -1, Key: -1, Size: -1}
	for i, name := range strings.Split(schema, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "bucket":
			cols.Bucket = i
		case "key":
			cols.Key = i
		case "size":
			cols.Size = i
		}
	}
	return cols
}
