package minio

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
	minioErr "github.com/minio/minio-go/v7"
)

// mapError translates a MinIO SDK or transport error into a *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	var already *errs.Error
	if errors.As(err, &already) {
		return already
	}

	// Context cancellation / deadline
	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindCancelled, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ErrKindTransport, msg, err)
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	var resp minioErr.ErrorResponse
	if errors.As(err, &resp) && (resp.Code != "" || resp.StatusCode != 0) {
		e := errs.Wrap(remoteKind(resp), msg, err)
		e.Code = resp.Code
		e.StatusCode = resp.StatusCode
		if resp.Message != "" {
			e.Message = msg + ": " + resp.Message
		}
		return e
	}

	// Dial, DNS, TLS and connection reset errors all surface as net.Error
	// (url.Error implements it).
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.Wrap(errs.ErrKindTransport, msg, err)
	}

	return errs.Wrap(errs.ErrKindUnknown, msg, err)
}

func remoteKind(resp minioErr.ErrorResponse) errs.ErrKind {
	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.ErrKindAuth
	}

	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
		"InvalidToken", "ExpiredToken", "AllAccessDisabled":
		return errs.ErrKindAuth
	}

	// Validation failures raised by the SDK itself never reached the store.
	if resp.StatusCode == 0 {
		switch resp.Code {
		case "InvalidBucketName", "InvalidObjectName", "InvalidArgument", "EntityTooLarge":
			return errs.ErrKindInvalidInput
		}
	}

	return errs.ErrKindRemoteAPI
}

// statusOf maps an operation error onto the TestConnection outcome.
func statusOf(err error) filestore.ConnectionStatus {
	switch errs.KindOf(err) {
	case errs.ErrKindAuth:
		return filestore.StatusForbidden
	case errs.ErrKindUnknown:
		return filestore.StatusUnknownError
	default:
		return filestore.StatusFailed
	}
}
