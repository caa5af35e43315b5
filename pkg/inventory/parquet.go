package inventory

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// parquetReader reads inventory rows from a Parquet file, one row group at
// a time.
type parquetReader struct {
	tempFile *os.File // only set when the reader buffered a stream itself
	cols     Columns

	rowGroups    []parquet.RowGroup
	currentRGIdx int
	currentRows  parquet.Rows
	rowBuf       []parquet.Row
	bufIdx       int
	bufLen       int
}

// NewParquetReader opens a Parquet inventory file from random-access data.
// Columns are detected from the schema.
func NewParquetReader(r io.ReaderAt, size int64) (Reader, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	return newParquetReader(file, nil)
}

// NewParquetReaderFromStream buffers a Parquet stream to a temp file, since
// Parquet needs random access, and opens it. The temp file is removed on
// Close. The reader owns r.
func NewParquetReaderFromStream(r io.ReadCloser) (Reader, error) {
	tempFile, err := os.CreateTemp("", "inventory-*.parquet")
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		tempFile.Close()
		os.Remove(tempFile.Name())
	}

	written, err := io.Copy(tempFile, r)
	r.Close()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("buffer parquet data: %w", err)
	}

	file, err := parquet.OpenFile(tempFile, written)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	pr, err := newParquetReader(file, tempFile)
	if err != nil {
		cleanup()
		return nil, err
	}
	return pr, nil
}

// detectColumns finds the S3 Inventory Parquet column names in schema.
func detectColumns(schema *parquet.Schema) (Columns, error) {
	cols := Columns{Bucket: -1, Key: -1, Size: -1}
	for i, field := range schema.Fields() {
		switch field.Name() {
		case "bucket":
			cols.Bucket = i
		case "key":
			cols.Key = i
		case "size":
			cols.Size = i
		}
	}
	if cols.Key < 0 {
		return cols, errors.New("parquet schema missing 'key' column")
	}
	return cols, nil
}

func newParquetReader(file *parquet.File, tempFile *os.File) (*parquetReader, error) {
	cols, err := detectColumns(file.Schema())
	if err != nil {
		return nil, err
	}
	return &parquetReader{
		tempFile:     tempFile,
		cols:         cols,
		rowGroups:    file.RowGroups(),
		currentRGIdx: -1,
		rowBuf:       make([]parquet.Row, 1024),
	}, nil
}

// Next returns the next inventory row. Rows without a key are skipped.
func (r *parquetReader) Next() (Row, error) {
	for {
		if r.bufIdx < r.bufLen {
			row := r.toRow(r.rowBuf[r.bufIdx])
			r.bufIdx++
			if row.Key == "" {
				continue
			}
			return row, nil
		}

		if r.currentRows != nil {
			n, err := r.currentRows.ReadRows(r.rowBuf)
			if n > 0 {
				r.bufIdx = 0
				r.bufLen = n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return Row{}, fmt.Errorf("read parquet rows: %w", err)
			}
			r.currentRows.Close()
			r.currentRows = nil
		}

		r.currentRGIdx++
		if r.currentRGIdx >= len(r.rowGroups) {
			return Row{}, io.EOF
		}
		r.currentRows = r.rowGroups[r.currentRGIdx].Rows()
	}
}

func (r *parquetReader) toRow(values parquet.Row) Row {
	var row Row
	for _, val := range values {
		if val.IsNull() {
			continue
		}
		switch val.Column() {
		case r.cols.Key:
			row.Key = val.String()
		case r.cols.Bucket:
			row.Bucket = val.String()
		case r.cols.Size:
			row.Size = val.Int64()
		}
	}
	return row
}

// Close releases resources and removes any temp file.
func (r *parquetReader) Close() error {
	if r.currentRows != nil {
		r.currentRows.Close()
		r.currentRows = nil
	}
	if r.tempFile != nil {
		name := r.tempFile.Name()
		r.tempFile.Close()
		os.Remove(name)
		r.tempFile = nil
	}
	return nil
}
