package inventory

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// csvReader reads inventory rows from CSV streams. S3 Inventory writes keys
// URL-encoded in CSV output.
type csvReader struct {
	csvReader *csv.Reader
	cols      Columns
	closers   []io.Closer
}

// NewCSVReader creates a CSV inventory reader over raw, uncompressed CSV data.
func NewCSVReader(r io.Reader, cols Columns) (Reader, error) {
	if cols.Key < 0 {
		return nil, errors.New("inventory schema missing Key column")
	}
	return &csvReader{csvReader: newCSV(r), cols: cols}, nil
}

// NewCSVReaderFromStream creates a CSV inventory reader from an object stream,
// decompressing it when key ends in ".gz". The reader owns r.
func NewCSVReaderFromStream(r io.ReadCloser, key string, cols Columns) (Reader, error) {
	if cols.Key < 0 {
		r.Close()
		return nil, errors.New("inventory schema missing Key column")
	}

	var reader io.Reader = r
	closers := []io.Closer{r}

	if strings.HasSuffix(strings.ToLower(key), ".gz") {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		closers = append(closers, gzr)
		reader = gzr
	}

	return &csvReader{csvReader: newCSV(reader), cols: cols, closers: closers}, nil
}

func newCSV(r io.Reader) *csv.Reader {
	csvr := csv.NewReader(r)
	csvr.ReuseRecord = true
	csvr.FieldsPerRecord = -1
	csvr.LazyQuotes = true
	return csvr
}

// Next returns the next inventory row. Rows without a key are skipped.
func (r *csvReader) Next() (Row, error) {
	for {
		fields, err := r.csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Row{}, io.EOF
			}
			return Row{}, fmt.Errorf("read CSV row: %w", err)
		}

		if len(fields) <= r.cols.Key || fields[r.cols.Key] == "" {
			continue
		}

		key, err := url.QueryUnescape(fields[r.cols.Key])
		if err != nil {
			return Row{}, fmt.Errorf("decode key %q: %w", fields[r.cols.Key], err)
		}
		row := Row{Key: key}

		if r.cols.Bucket >= 0 && len(fields) > r.cols.Bucket {
			row.Bucket = fields[r.cols.Bucket]
		}
		if r.cols.Size >= 0 && len(fields) > r.cols.Size {
			// Missing or malformed sizes (delete markers) count as 0.
			if size, err := strconv.ParseInt(strings.TrimSpace(fields[r.cols.Size]), 10, 64); err == nil {
				row.Size = size
			}
		}
		return row, nil
	}
}

// Close releases resources, inner readers first.
func (r *csvReader) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
