// Package errs provides the unified error type used across all of s3nav.
//
// Every object store operation returns either its result or an *errs.Error.
// Callers branch on the Kind through the Is* predicates and never need to
// import minio-go or inspect transport errors themselves.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindRemoteAPI, "failed to get object", minioErr)
//
//	// In a caller, check the error kind:
//	if errs.IsAuth(err) {
//	    showCredentialsHint()
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind categorises an error without exposing store-specific codes.
type ErrKind int

const (
	ErrKindUnknown        ErrKind = iota
	ErrKindLocalIO                // local file could not be opened, created, read or written
	ErrKindTransport              // DNS, TCP, TLS failure; store unreachable
	ErrKindAuth                   // credentials rejected or permission denied
	ErrKindRemoteAPI              // store returned a well-formed error response
	ErrKindCancelled              // caller aborted the operation
	ErrKindPartialRename          // copy succeeded, delete of the old key did not
	ErrKindInvalidInput           // bad arguments from the caller
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindLocalIO:
		return "local_io"
	case ErrKindTransport:
		return "transport"
	case ErrKindAuth:
		return "auth"
	case ErrKindRemoteAPI:
		return "remote_api"
	case ErrKindCancelled:
		return "cancelled"
	case ErrKindPartialRename:
		return "partial_rename"
	case ErrKindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all s3nav subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
//
// The optional context fields are filled in where they apply: Path for
// local I/O, Bucket/Key for remote operations, Code/StatusCode verbatim from
// the store, Phase for multi-step operations such as rename.
type Error struct {
	Kind    ErrKind
	Message string

	Path       string
	Bucket     string
	Key        string
	Code       string
	StatusCode int
	Phase      string

	Cause error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)

	var ctx []string
	if e.Path != "" {
		ctx = append(ctx, "path="+e.Path)
	}
	if e.Bucket != "" {
		ctx = append(ctx, "bucket="+e.Bucket)
	}
	if e.Key != "" {
		ctx = append(ctx, "key="+e.Key)
	}
	if e.Phase != "" {
		ctx = append(ctx, "phase="+e.Phase)
	}
	if e.Code != "" {
		ctx = append(ctx, "code="+e.Code)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, " "))
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// LocalIO wraps a failure on a local file. The path is always recorded.
func LocalIO(msg, path string, cause error) *Error {
	return &Error{Kind: ErrKindLocalIO, Message: msg, Path: path, Cause: cause}
}

// WithObject records the bucket and key the error refers to and returns e.
func (e *Error) WithObject(bucket, key string) *Error {
	e.Bucket = bucket
	e.Key = key
	return e
}

// WithPhase records the step of a multi-step operation that failed.
func (e *Error) WithPhase(phase string) *Error {
	e.Phase = phase
	return e
}

// --- Predicates ---

// IsLocalIO reports whether err is a local file failure.
func IsLocalIO(err error) bool {
	return kindOf(err) == ErrKindLocalIO
}

// IsTransport reports whether the store could not be reached.
func IsTransport(err error) bool {
	return kindOf(err) == ErrKindTransport
}

// IsAuth reports whether err is an authentication or authorization failure.
func IsAuth(err error) bool {
	return kindOf(err) == ErrKindAuth
}

// IsRemoteAPI reports whether the store answered with an error response.
func IsRemoteAPI(err error) bool {
	return kindOf(err) == ErrKindRemoteAPI
}

// IsCancelled reports whether the caller aborted the operation.
func IsCancelled(err error) bool {
	return kindOf(err) == ErrKindCancelled
}

// IsPartialRename reports whether a rename left both the old and the new key behind.
func IsPartialRename(err error) bool {
	return kindOf(err) == ErrKindPartialRename
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsNotFound reports whether err is a store response for a missing key or
// bucket.
func IsNotFound(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != ErrKindRemoteAPI {
		return false
	}
	switch e.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return e.StatusCode == 404
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
