// Package jobinput parses and validates the trigger payload of one chunk
// invocation and derives the job's partition key from it.
package jobinput

import (
	"errors"
	"fmt"
	"strings"
)

// Event field names as sent by the workflow trigger.
const (
	FieldOwner       = "owner"
	FieldExecutionID = "sfnExecutionId"
	FieldBucket      = "bucketName"
	FieldPrefix      = "keyPrefix"
	FieldTable       = "activityLogsTable"
)

// executionIDSegment is the 0-based index of the execution id inside the
// colon-delimited run identifier (an execution ARN).
const executionIDSegment = 7

var (
	// ErrMissingField indicates one or more required event fields are absent.
	ErrMissingField = errors.New("missing required input field")
	// ErrMalformedExecutionID indicates the run identifier has too few segments.
	ErrMalformedExecutionID = errors.New("malformed execution id")
)

// MissingFieldError names every required field absent from an event.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing parameters: %s", strings.Join(e.Fields, ", "))
}

// Is reports whether target is ErrMissingField.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Event is the raw trigger payload. Prefix is nil when keyPrefix is absent;
// an empty prefix selects the whole bucket.
type Event struct {
	Owner       string  `json:"owner"`
	ExecutionID string  `json:"sfnExecutionId"`
	Bucket      string  `json:"bucketName"`
	Prefix      *string `json:"keyPrefix"`
	Table       string  `json:"activityLogsTable"`
}

// Input is a validated job input. Construct it with FromEvent or FromMap.
type Input struct {
	Owner       string
	ExecutionID string
	Bucket      string
	Prefix      string
	Table       string
}

// FromEvent validates ev and extracts the execution id.
// Presence of all fields is checked before the execution id is parsed.
func FromEvent(ev Event) (Input, error) {
	if missing := missingFields(ev.Owner, ev.ExecutionID, ev.Bucket, ev.Prefix != nil, ev.Table); len(missing) > 0 {
		return Input{}, &MissingFieldError{Fields: missing}
	}
	raw := Input{
		Owner:       ev.Owner,
		ExecutionID: ev.ExecutionID,
		Bucket:      ev.Bucket,
		Prefix:      *ev.Prefix,
		Table:       ev.Table,
	}

	execID, err := ParseExecutionID(ev.ExecutionID)
	if err != nil {
		return Input{}, err
	}

	raw.ExecutionID = execID
	return raw, nil
}

// FromMap validates an untyped event. Values that are not strings are
// treated as missing.
func FromMap(m map[string]any) (Input, error) {
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	ev := Event{
		Owner:       str(FieldOwner),
		ExecutionID: str(FieldExecutionID),
		Bucket:      str(FieldBucket),
		Table:       str(FieldTable),
	}
	if p, ok := m[FieldPrefix].(string); ok {
		ev.Prefix = &p
	}
	return FromEvent(ev)
}

// ParseExecutionID returns the 8th colon-delimited segment of raw, which
// must be non-empty.
func ParseExecutionID(raw string) (string, error) {
	parts := strings.Split(raw, ":")
	if len(parts) <= executionIDSegment {
		return "", fmt.Errorf("%w: %q has %d segments, need at least %d",
			ErrMalformedExecutionID, raw, len(parts), executionIDSegment+1)
	}
	if parts[executionIDSegment] == "" {
		return "", fmt.Errorf("%w: %q has an empty execution segment", ErrMalformedExecutionID, raw)
	}
	return parts[executionIDSegment], nil
}

// Validate reports a *MissingFieldError if any field of in other than
// Prefix is empty. It guards against Inputs built without FromEvent.
func (in Input) Validate() error {
	if missing := missingFields(in.Owner, in.ExecutionID, in.Bucket, true, in.Table); len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}

// missingFields lists absent fields in event order. Only the prefix may be
// empty, so its presence is passed separately.
func missingFields(owner, executionID, bucket string, hasPrefix bool, table string) []string {
	var missing []string
	if owner == "" {
		missing = append(missing, FieldOwner)
	}
	if executionID == "" {
		missing = append(missing, FieldExecutionID)
	}
	if bucket == "" {
		missing = append(missing, FieldBucket)
	}
	if !hasPrefix {
		missing = append(missing, FieldPrefix)
	}
	if table == "" {
		missing = append(missing, FieldTable)
	}
	return missing
}

// PartitionKey returns the state-store partition key for this job.
func (in Input) PartitionKey() string {
	return PartitionKey(in.Owner, in.ExecutionID)
}

// PartitionKey composes the partition key for an owner and execution id.
// Neither component is escaped.
func PartitionKey(owner, executionID string) string {
	return "OWNER#" + owner + "#EXECUTION_ID#" + executionID
}
