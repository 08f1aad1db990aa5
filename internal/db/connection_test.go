package db

import (
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/hamzaKhattat/fs-xml-router/pkg/errors"
)

func TestIsRetryableError(t *testing.T) {
    retryable := []error{
        errors.New(errors.ErrDatabase, "dial tcp: connection refused"),
        errors.New(errors.ErrDatabase, "Deadlock found when trying to get lock; try restarting transaction"),
        errors.New(errors.ErrDatabase, "i/o timeout"),
    }
    for _, err := range retryable {
        assert.True(t, isRetryableError(err), "%v", err)
    }

    // Admin mutations run through Transaction; their not-found and
    // conflict errors must pass out unchanged, never retried.
    terminal := []error{
        nil,
        errors.New(errors.ErrClientNotFound, "sip client not found").WithStatusCode(404),
        errors.New(errors.ErrDuplicate, "group already exists").WithStatusCode(409),
        errors.New(errors.ErrDatabase, "syntax error near SELECT"),
    }
    for _, err := range terminal {
        assert.False(t, isRetryableError(err), "%v", err)
    }
}
