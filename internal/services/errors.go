// Package services defines the business logic for documentations, ingestion,
// retrieval, threads and chat streams. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Documentation-related errors.
var (
	// ErrDocumentationNotFound indicates that the requested documentation does
	// not exist or is not accessible to the current user.
	ErrDocumentationNotFound = errors.New("documentation not found")

	// ErrNotOwner is returned when a documentation selected as chat context
	// belongs to another user.
	ErrNotOwner = errors.New("documentation belongs to another user")

	// ErrUnitNotFound indicates that the file or page does not exist within the
	// documentation.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrWebLinksNotFound is returned for web operations on a documentation
	// that has no crawled link list.
	ErrWebLinksNotFound = errors.New("web links not found")

	// ErrWrongType is returned when a files-only or web-only operation targets
	// a documentation of the other type.
	ErrWrongType = errors.New("operation not supported for this documentation type")

	// ErrNoFiles is returned when a files operation carries no files.
	ErrNoFiles = errors.New("no files provided")

	// ErrInvalidFileName is returned for file names rejected by the file policy.
	ErrInvalidFileName = errors.New("file type not allowed")

	// ErrInvalidURL is returned for malformed or non-http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
)

// Metering errors.
var (
	// ErrInsufficientCredits is returned when a scan needs more credits than
	// the caller has left.
	ErrInsufficientCredits = errors.New("insufficient scan credits")

	// ErrQuotaExceeded is returned when a metered feature is exhausted.
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// Thread and message errors.
var (
	// ErrThreadNotFound indicates that the requested thread does not exist or is
	// not accessible to the current user.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound indicates that the requested message does not exist
	// or is not accessible to the current user.
	ErrMessageNotFound = errors.New("message not found")

	// ErrStreamNotFound indicates that no assistant message is bound to the
	// stream handle, or it belongs to another user.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrEmptyPrompt is returned when a request to create a message contains
	// an empty prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrTooLong is returned when a request to create a message exceeds the
	// maximum configured length limit.
	ErrTooLong = errors.New("prompt too long")
)
