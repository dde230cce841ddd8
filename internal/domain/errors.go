package domain

import "errors"

var (
	// ErrNotFound means the handle does not resolve upstream. Terminal for
	// the current input; the user has to correct the handle.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited means the upstream throttled the call. The feed loader
	// retries once; everyone else surfaces it.
	ErrRateLimited = errors.New("rate limited")

	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrUnavailable covers transport and server failures. Retryable by
	// explicit user action only.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrLoadInFlight is returned when a pagination request is suppressed
	// because one is already running for the same identity.
	ErrLoadInFlight = errors.New("load already in flight")

	// ErrAnalysisInFlight is returned when a second analysis is requested
	// for a match whose job is still processing.
	ErrAnalysisInFlight = errors.New("analysis already in flight")

	// ErrAnalysisNotRetryable is returned for a failed job when retrying
	// failed analyses is disabled.
	ErrAnalysisNotRetryable = errors.New("failed analysis cannot be retried")
)
