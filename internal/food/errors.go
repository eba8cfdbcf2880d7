package food

import (
	"errors"
	"fmt"
)

// ErrMissingKey marks a record without a food_name. Such records can never
// be committed and go straight to the dead-letter path.
var ErrMissingKey = errors.New("missing required field food_name")

// ErrTooManyInvocations is returned when every invocation slot is busy and
// the wait timeout expires. The trigger should redeliver later.
var ErrTooManyInvocations = errors.New("too many concurrent invocations, please try again later")

// BlobReadError reports that the source object could not be fetched.
type BlobReadError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *BlobReadError) Error() string {
	return fmt.Sprintf("blob read s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *BlobReadError) Unwrap() error { return e.Err }

// ParseError reports malformed CSV input. Line is the 1-indexed input line
// where parsing stopped, or 0 when unknown.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid csv at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("invalid csv: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BatchWriteError reports a store call that was rejected outright.
// Retryable is false when the rejection is caused by the request itself
// (validation, constraint violations) rather than by store conditions.
type BatchWriteError struct {
	Table     string
	Size      int
	Retryable bool
	Err       error
}

func (e *BatchWriteError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("batch write to %s (%d items, %s): %v", e.Table, e.Size, kind, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// IsRetryable reports whether a failed store call may succeed if repeated.
// Errors that are not a BatchWriteError are treated as transient.
func IsRetryable(err error) bool {
	var bwe *BatchWriteError
	if errors.As(err, &bwe) {
		return bwe.Retryable
	}
	return err != nil
}

// MalformedEventError reports a trigger payload that failed validation at
// the boundary.
type MalformedEventError struct {
	Kind   string // "object-created" or "change"
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: %s", e.Kind, e.Reason)
}
