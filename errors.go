package scouter

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyAttempts is returned to every caller of an ID whose batch
	// came back blank more times than the scheduler allows.
	ErrTooManyAttempts = errors.New("scouter: too many failed attempts")
	// ErrCacheUnavailable wraps errors from a store. The scheduler never
	// returns it to callers; a failing store is treated as a miss for all.
	ErrCacheUnavailable = errors.New("scouter: cache unavailable")
	// ErrRemoteAPI is matched by errors.Is for structured errors reported by
	// the remote service.
	ErrRemoteAPI = errors.New("scouter: remote api error")
	// ErrRemoteTransport is matched for network failures and non-2xx
	// responses without a structured error body.
	ErrRemoteTransport = errors.New("scouter: remote transport error")
	// ErrRemoteParse is matched for responses that couldn't be decoded.
	ErrRemoteParse = errors.New("scouter: unparseable remote response")
	// ErrClosed is returned to pending callers when the scheduler is closed.
	ErrClosed = errors.New("scouter: closed")
)

// APIError is a {code, error} payload returned by the remote service.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Limits     *RateLimits
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scouter: api request failed. Error: %s; Code: %d", e.Message, e.Code)
}

func (e *APIError) Unwrap() error           { return ErrRemoteAPI }
func (e *APIError) RateLimits() *RateLimits { return e.Limits }

// HTTPError is a non-2xx response that didn't carry an error payload.
type HTTPError struct {
	StatusCode int
	Limits     *RateLimits
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("scouter: api request failed. HTTP status code: %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error           { return ErrRemoteTransport }
func (e *HTTPError) RateLimits() *RateLimits { return e.Limits }

// TransportError is returned when the request never produced a response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("scouter: api request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrRemoteTransport, e.Err} }

// ParseError is returned when a response body isn't the JSON we expect.
type ParseError struct {
	Err    error
	Limits *RateLimits
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scouter: could not parse api response: %v", e.Err)
}

func (e *ParseError) Unwrap() []error         { return []error{ErrRemoteParse, e.Err} }
func (e *ParseError) RateLimits() *RateLimits { return e.Limits }

// LimitsFromError returns the rate limit snapshot attached to err, if any.
func LimitsFromError(err error) *RateLimits {
	var carrier interface{ RateLimits() *RateLimits }
	if errors.As(err, &carrier) {
		return carrier.RateLimits()
	}
	return nil
}

func tooManyAttempts(id ID) error {
	return fmt.Errorf("%w to get stats for %d", ErrTooManyAttempts, id)
}
