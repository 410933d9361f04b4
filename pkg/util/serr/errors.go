package serr

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Leaf errors are defined here.
// WARN: take care when adding a new error, check whether an existing one
// already covers the case. Name: Err + related prefix + error name.
var (
	// Store related
	ErrStoreCorrupt   = newGateError("session store corrupt", 100, false)
	ErrStorePersist   = newGateError("session store persist failure", 101, true)
	ErrStoreIoFailed  = newGateError("session store io failed", 102, true)
	ErrRecordNotFound = newGateError("session record not found", 103, false)

	// Session related
	ErrSessionNotFound  = newGateError("session not found", 200, false)
	ErrSessionDuplicate = newGateError("session already exists", 201, false)
	ErrClientConnect    = newGateError("client connect failed", 202, true)
	ErrClientLogout     = newGateError("client logout failed", 203, true)

	// Send related
	ErrSendFailed = newGateError("send failed", 300, true)

	// Request related
	ErrInvalidRequest   = newGateError("invalid request", 400, false)
	ErrParameterMissing = newGateError("missing required parameter", 401, false)

	// Chat related
	ErrGroupNotFound = newGateError("group not found", 500, false)

	// Observer related
	ErrObserverClosed = newGateError("observer closed", 600, false)

	// Do NOT export this,
	// keep only for converting unknown errors to gateError.
	errUnexpected = newGateError("unexpected error", (1<<16)-1, false)
)

// Code returns the error code of the given error.
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case gateError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		}
		return errUnexpected.code()
	}
}

// IsCanceledOrTimeout reports whether the error is a context cancellation or
// deadline exceeded.
func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// IsRetryableErr reports whether the error is worth retrying.
func IsRetryableErr(err error) bool {
	if err, ok := err.(gateError); ok {
		return err.retriable
	}

	return false
}

type gateError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
}

func newGateError(msg string, code int32, retriable bool) gateError {
	return gateError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e gateError) code() int32 {
	return e.errCode
}

func (e gateError) Error() string {
	return e.msg
}

func (e gateError) Detail() string {
	return e.detail
}

func (e gateError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(gateError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make serr work for multi errors,
	// we need cause of multi errors, which is defined as the last error.
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine merges the given errors into one, ignoring nils.
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
