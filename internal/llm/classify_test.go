package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"empty response", ErrEmptyResponse, Unknown},
		{"canceled", context.Canceled, Unknown},
		{"deadline", context.DeadlineExceeded, Transient},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), Transient},
		{"net error", timeoutErr{}, Transient},
		{"blocked", fmt.Errorf("gen: %w", ErrBlocked), Permanent},
		{"status 429", &StatusError{Code: 429}, Transient},
		{"status 408", &StatusError{Code: 408}, Transient},
		{"status 500", &StatusError{Code: 500}, Transient},
		{"status 503 wrapped", fmt.Errorf("call: %w", &StatusError{Code: 503}), Transient},
		{"status 400", &StatusError{Code: 400}, Permanent},
		{"status 401", &StatusError{Code: 401}, Permanent},
		{"status 403", &StatusError{Code: 403}, Permanent},
		{"status 404", &StatusError{Code: 404}, Permanent},
		{"status 409", &StatusError{Code: 409}, Unknown},
		{"googleapi 429", &googleapi.Error{Code: 429}, Transient},
		{"googleapi 404", &googleapi.Error{Code: 404}, Permanent},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), Transient},
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "quota"), Transient},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad"), Permanent},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "key"), Permanent},
		{"grpc unknown", status.Error(codes.Unknown, "?"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassString(t *testing.T) {
	if Transient.String() != "transient" || Permanent.String() != "permanent" || Unknown.String() != "unknown" {
		t.Error("unexpected Class names")
	}
}
