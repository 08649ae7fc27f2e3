package apperrors

import (
	"fmt"
	"net/http"
)

// FromHTTPStatus classifies a provider HTTP response status into the relay
// taxonomy. The body message is carried for operator-facing output; secret
// material must already be stripped by the caller.
func FromHTTPStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e := New(KindCredential, "credential_rejected", message)
		e.HTTPStatus = status
		return e
	case status == http.StatusNotFound:
		e := New(KindHardDeny, "not_found", message)
		e.HTTPStatus = status
		return e
	case status == http.StatusTooManyRequests:
		e := New(KindTransient, "rate_limited", message)
		e.HTTPStatus = status
		e.RateLimit = true
		return e
	case status >= 500:
		e := New(KindTransient, "upstream_error", fmt.Sprintf("upstream returned %d: %s", status, message))
		e.HTTPStatus = status
		return e
	case status >= 400:
		e := New(KindCredential, "request_rejected", fmt.Sprintf("upstream rejected request (%d): %s", status, message))
		e.HTTPStatus = status
		return e
	default:
		e := New(KindTransient, "unexpected_status", fmt.Sprintf("unexpected upstream status %d", status))
		e.HTTPStatus = status
		return e
	}
}
