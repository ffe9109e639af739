package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNoCredential is returned when the gateway was built without a backend.
	ErrNoCredential = errors.New("no reasoning credential configured")
	// ErrExhausted is returned after every model in the chain failed.
	ErrExhausted = errors.New("all models failed")
	// ErrBlocked reports a response withheld by the provider's safety filter.
	ErrBlocked = errors.New("response blocked by provider")
	// ErrEmptyResponse reports a call that succeeded but produced no text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Class is the retry classification of a model error.
type Class int

const (
	Unknown Class = iota
	Transient
	Permanent
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// StatusError is an HTTP-style failure reported by a backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model call failed: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("model call failed: %d %s", e.Code, e.Message)
}

// Classify decides whether err is worth retrying on the same model (Transient),
// should skip to the next model (Permanent), or is not understood (Unknown).
// Unknown is never retried.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}

	switch {
	case errors.Is(err, ErrBlocked):
		return Permanent
	case errors.Is(err, context.Canceled):
		return Unknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.ErrUnexpectedEOF):
		return Transient
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyHTTP(se.Code)
	}

	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if code := ae.HTTPCode(); code > 0 {
			return classifyHTTP(code)
		}
		if st := ae.GRPCStatus(); st != nil {
			return classifyGRPC(st.Code())
		}
	}

	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return classifyHTTP(ge.Code)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK {
		return classifyGRPC(st.Code())
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}

	return Unknown
}

func classifyHTTP(code int) Class {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return Transient
	case code >= 500 && code < 600:
		return Transient
	case code == http.StatusBadRequest, code == http.StatusUnauthorized,
		code == http.StatusForbidden, code == http.StatusNotFound:
		return Permanent
	}
	return Unknown
}

func classifyGRPC(code codes.Code) Class {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return Transient
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated,
		codes.FailedPrecondition, codes.Unimplemented:
		return Permanent
	}
	return Unknown
}
