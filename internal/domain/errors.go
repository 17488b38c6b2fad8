package domain

import (
	"errors"
	"fmt"
	"time"
)

// classified is implemented by every error in the trading taxonomy so the
// resiliency layer can dispatch on retryability instead of string matching.
type classified interface {
	error
	Transient() bool
}

// IsTransient reports whether err (or anything it wraps) is a retryable
// trading error. Unclassified errors are treated as permanent.
func IsTransient(err error) bool {
	var c classified
	if errors.As(err, &c) {
		return c.Transient()
	}
	return false
}

// ConnectionError indicates a network or session failure. Transient.
type ConnectionError struct {
	Venue string
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Venue, e.Cause)
}
func (e *ConnectionError) Unwrap() error   { return e.Cause }
func (e *ConnectionError) Transient() bool { return true }

// AuthenticationError indicates a failed or expired session credential. Transient.
type AuthenticationError struct {
	Venue string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication with %s failed", e.Venue)
}
func (e *AuthenticationError) Transient() bool { return true }

// RateLimitError indicates the venue throttled the request. Transient.
type RateLimitError struct {
	Venue      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s (retry after %s)", e.Venue, e.RetryAfter)
}
func (e *RateLimitError) Transient() bool { return true }

// TimeoutError indicates the venue did not respond in time. Transient.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Elapsed)
}
func (e *TimeoutError) Transient() bool { return true }

// RejectedOrderError indicates the venue refused the order. Permanent.
type RejectedOrderError struct {
	OrderID string
	Reason  string
}

func (e *RejectedOrderError) Error() string {
	return fmt.Sprintf("order %s rejected: %s", e.OrderID, e.Reason)
}
func (e *RejectedOrderError) Transient() bool { return false }

// InvalidParameterError indicates a malformed request. Permanent.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}
func (e *InvalidParameterError) Transient() bool { return false }

// InsufficientBalanceError indicates the account cannot fund the order. Permanent.
type InsufficientBalanceError struct {
	Asset string
	Need  string
	Have  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %s, have %s", e.Asset, e.Need, e.Have)
}
func (e *InsufficientBalanceError) Transient() bool { return false }

// CircuitOpenError is raised by the resiliency manager itself when the
// breaker is open; the adapter is never contacted.
type CircuitOpenError struct {
	Venue string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s", e.Venue)
}
func (e *CircuitOpenError) Transient() bool { return false }

// CapacityExceededError is raised by the order manager before contacting
// the adapter, e.g. when max open orders is reached.
type CapacityExceededError struct {
	Limit int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("open order capacity exceeded (limit %d)", e.Limit)
}
func (e *CapacityExceededError) Transient() bool { return false }

// ErrOrderNotFound is returned when an order ID is unknown to the venue
// or to the order manager.
var ErrOrderNotFound = errors.New("order not found")
