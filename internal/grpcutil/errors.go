package grpcutil

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode extracts a gRPC error code from an error. If the error is not a
// gRPC error, it returns codes.Unknown.
func ErrorCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}

	if st, ok := status.FromError(err); ok {
		return st.Code()
	}

	return codes.Unknown
}

// IsCanceled reports whether the call was aborted by the caller.
func IsCanceled(err error) bool {
	return ErrorCode(err) == codes.Canceled || errors.Is(err, context.Canceled)
}

// IsDeadlineExceeded reports whether the call ran out of time.
func IsDeadlineExceeded(err error) bool {
	return ErrorCode(err) == codes.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded)
}

// FromContext converts a context error into the matching status error, so that
// handlers report cancellation with the right code.
func FromContext(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return err
	}
}
