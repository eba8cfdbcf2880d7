package food

// messages.go maps pipeline errors to messages with support codes.
//
//	BLOB001 - Source object missing or unreadable
//	CSV001  - Malformed CSV structure
//	STORE001 - Store rejected a batch (retryable)
//	STORE002 - Store rejected a batch (permanent)
//	EVT001  - Trigger payload failed validation
//	ING001  - Too many concurrent invocations
//	ING002  - Invocation exceeded its execution budget
//	ING003  - Invocation cancelled
//	ERR000  - Anything else
//
// Typed errors are matched first with errors.As; plain errors fall back to
// case-insensitive substring patterns, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with a support code.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

var (
	msgBlobRead = UserMessage{
		Message: "The uploaded object could not be read",
		Action:  "Check that the object exists and the service can access the bucket",
		Code:    "BLOB001",
	}
	msgParse = UserMessage{
		Message: "The uploaded file is not a valid CSV",
		Action:  "Ensure every row has the same number of comma-separated columns as the header",
		Code:    "CSV001",
	}
	msgStoreRetryable = UserMessage{
		Message: "The store could not accept the batch right now",
		Action:  "The batch is retried automatically",
		Code:    "STORE001",
	}
	msgStorePermanent = UserMessage{
		Message: "The store rejected the batch",
		Action:  "Review the dead-lettered records for missing or invalid fields",
		Code:    "STORE002",
	}
	msgEvent = UserMessage{
		Message: "The event payload is malformed",
		Action:  "Send an S3 object-created notification or a change-stream batch",
		Code:    "EVT001",
	}
	msgBusy = UserMessage{
		Message: "Too many ingestions in progress",
		Action:  "The trigger should redeliver after a short delay",
		Code:    "ING001",
	}
	msgTimeout = UserMessage{
		Message: "Ingestion exceeded its execution budget",
		Action:  "Split the file or raise INGEST_TIMEOUT",
		Code:    "ING002",
	}
	msgCancelled = UserMessage{
		Message: "Ingestion was cancelled",
		Action:  "Redeliver the event when ready",
		Code:    "ING003",
	}
	defaultMessage = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Check the service logs for the invocation",
		Code:    "ERR000",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{pattern: "nosuchkey", msg: msgBlobRead},
	{pattern: "nosuchbucket", msg: msgBlobRead},
	{pattern: "provisionedthroughputexceeded", msg: msgStoreRetryable},
	{pattern: "throttl", msg: msgStoreRetryable},
	{pattern: "connection refused", msg: msgStoreRetryable},
	{pattern: "validationexception", msg: msgStorePermanent},
	{pattern: "violates not-null", msg: msgStorePermanent},
	{pattern: "too many concurrent", msg: msgBusy},
}

// MapError converts an error to a user-facing message. Returns the zero
// UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		blobErr  *BlobReadError
		parseErr *ParseError
		batchErr *BatchWriteError
		eventErr *MalformedEventError
	)
	switch {
	case errors.As(err, &blobErr):
		return msgBlobRead
	case errors.As(err, &parseErr):
		return msgParse
	case errors.As(err, &eventErr):
		return msgEvent
	case errors.As(err, &batchErr):
		if batchErr.Retryable {
			return msgStoreRetryable
		}
		return msgStorePermanent
	case errors.Is(err, ErrTooManyInvocations):
		return msgBusy
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.Is(err, context.Canceled):
		return msgCancelled
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
