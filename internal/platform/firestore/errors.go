package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind uint8

const (
	kindOther errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// Error implements repositories.RepositoryError for the Firestore repositories.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports a missing order, payment, product or customer document.
func (e *Error) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsConflict reports a lost transaction race or a duplicate document id.
func (e *Error) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable reports a transient backend failure worth retrying.
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

func classify(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return kindUnavailable
	default:
		return kindOther
	}
}

// WrapError tags err with op and its repository category. Cancellation and deadline
// errors are returned as the context sentinels so callers can map them to timeouts.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := status.Code(err)
	if code == codes.Canceled {
		return context.Canceled
	}
	if code == codes.DeadlineExceeded {
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, kind: classify(code), err: err}
}

// NotFound builds a not-found error for lookups that are not keyed by document id,
// such as a payment located by its gateway reference.
func NotFound(op string, what string) error {
	return &Error{op: op, kind: kindNotFound, err: fmt.Errorf("%s not found", what)}
}

// Conflict builds a conflict error for preconditions checked inside a transaction.
func Conflict(op string, format string, args ...any) error {
	return &Error{op: op, kind: kindConflict, err: fmt.Errorf(format, args...)}
}
