package engine

import (
	"context"
	"errors"
	"net"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
)

// RetryConfig controls backoff; shared with the HTTP retries in stealth.go.
type RetryConfig = stealth.RetryConfig

// StoreRetryConfig is used by network-backed stores.
var StoreRetryConfig = RetryConfig{
	MaxRetries:  2,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Multiplier:  2.0,
}

// RetryDo runs fn through stealth.RetryDo, retrying only connection, DNS and
// timeout errors. Anything else ends the loop on the first attempt.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var final error
	v, err := stealth.RetryDo(ctx, rc, func() (T, error) {
		v, err := fn()
		if err != nil && !isRetryable(err) {
			final = err
			var zero T
			return zero, nil
		}
		return v, err
	})
	if err != nil {
		return v, err
	}
	if final != nil {
		var zero T
		return zero, final
	}
	return v, nil
}

// isRetryable returns true for connection, DNS and timeout errors.
func isRetryable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// net.Error includes OpError, so check after OpError
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
