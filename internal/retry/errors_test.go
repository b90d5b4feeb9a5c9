package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStructuredKinds(t *testing.T) {
	assert.Equal(t, KindTransient, Classify(Transient("extraction", 503, errors.New("bad gateway"))))
	assert.Equal(t, KindValidation, Classify(Validation("generation", errors.New("malformed output"))))
	wrapped := fmt.Errorf("stage failed: %w", Transient("scoring", 429, errors.New("rate limited")))
	assert.Equal(t, KindTransient, Classify(wrapped), "classification survives wrapping")
}

func TestClassifyTimeout(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.True(t, Retryable(fmt.Errorf("call: %w", context.DeadlineExceeded)))
}

func TestClassifyLooseFallback(t *testing.T) {
	retryableMessages := []string{
		"provider Overloaded, try later",
		"hit the RATE LIMIT for this key",
		"upstream returned 529",
		"http 503 service unavailable",
		"status 429 too many requests",
	}
	for _, msg := range retryableMessages {
		assert.Equal(t, KindTransient, Classify(errors.New(msg)), "message %q", msg)
	}
	assert.Equal(t, KindUnknown, Classify(errors.New("connection reset by peer")))
	assert.Equal(t, KindUnknown, Classify(context.Canceled))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Transient("matching", 500, errors.New("boom"))))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.False(t, Retryable(Validation("extraction", errors.New("no content"))))
	assert.False(t, Retryable(errors.New("something else entirely")))
	assert.False(t, Retryable(context.Canceled))
}

func TestProviderErrorMessage(t *testing.T) {
	err := Transient("extraction", 529, errors.New("provider overloaded"))
	assert.Equal(t, "extraction: provider overloaded", err.Error())
	bare := &ProviderError{Op: "matching", Kind: KindTransient, StatusCode: 503}
	assert.Equal(t, "matching: provider returned status 503", bare.Error())
}
