package apperrors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// FromNetworkError classifies a transport-level failure. Everything here is
// transient; a socket problem never proves a credential is bad.
func FromNetworkError(err error) *Error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient("timeout", "request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient("timeout", "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return Transient("request_canceled", "request was canceled", err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return Transient("connection_refused", "connection refused", err)
	case strings.Contains(msg, "connection reset") || strings.Contains(msg, "EOF"):
		return Transient("connection_reset", "connection reset by upstream", err)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "name resolution"):
		return Transient("dns_error", "DNS resolution failed", err)
	case strings.Contains(msg, "certificate") || strings.Contains(msg, "tls"):
		return Transient("tls_error", "TLS handshake failed", err)
	default:
		return Transient("network_error", "network error", err)
	}
}
