package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a collaborator failure for retry purposes. Adapters should
// return a *ProviderError carrying an explicit Kind; the substring and
// status-code sniffing below exists only as a fallback for untyped errors
// from heterogeneous upstreams.
type Kind string

const (
	// KindTransient covers rate limiting, overload, and 5xx-class provider
	// failures. Retried up to the policy's attempt limit.
	KindTransient Kind = "transient"
	// KindValidation covers malformed or invalid input. Never retried.
	KindValidation Kind = "validation"
	// KindTimeout covers a stage exceeding its declared timeout. Retried.
	KindTimeout Kind = "timeout"
	// KindUnknown is assigned when no classification is available.
	KindUnknown Kind = "unknown"
)

// ProviderError is the structured error shape collaborator adapters return.
type ProviderError struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: provider returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider error", e.Op)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient builds a retryable provider error.
func Transient(op string, statusCode int, err error) *ProviderError {
	return &ProviderError{Op: op, Kind: KindTransient, StatusCode: statusCode, Err: err}
}

// Validation builds a non-retryable provider error.
func Validation(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Kind: KindValidation, Err: err}
}

// retryableStatus covers rate limiting, upstream 5xx failures, and the 529
// overload status some model providers return.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

var retryableFragments = []string{"overloaded", "rate limit", "429", "500", "502", "503", "504", "529"}

// looseRetryable is the deliberately tolerant fallback classifier for
// untyped upstream errors: a case-insensitive substring match over known
// overload markers and status tokens.
func looseRetryable(msg string) bool {
	msg = strings.ToLower(msg)
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// Classify resolves the Kind of an arbitrary error.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if pe != nil && retryableStatus(pe.StatusCode) {
		return KindTransient
	}
	if looseRetryable(err.Error()) {
		return KindTransient
	}
	return KindUnknown
}

// Retryable reports whether the policy loop should attempt err again.
// Validation failures short-circuit; unknown errors are not retried so a
// genuinely broken collaborator fails fast.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindTimeout:
		return true
	}
	return false
}
