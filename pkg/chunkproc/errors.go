package chunkproc

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCount indicates more than one Count record exists for a
	// partition key. The job state is corrupt and the invocation cannot go on.
	ErrDuplicateCount = errors.New("duplicate count record")
	// ErrInvalidCount indicates the cached Count record is not a
	// non-negative decimal integer.
	ErrInvalidCount = errors.New("invalid count record")
	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)

// DuplicateCountError reports the partition key holding several Count records.
type DuplicateCountError struct {
	Table        string
	PartitionKey string
	Found        int
}

func (e *DuplicateCountError) Error() string {
	return fmt.Sprintf("multiple Count events found for PartitionKey: %s in table: %s (found %d)",
		e.PartitionKey, e.Table, e.Found)
}

// Is reports whether target is ErrDuplicateCount.
func (e *DuplicateCountError) Is(target error) bool {
	return target == ErrDuplicateCount
}
