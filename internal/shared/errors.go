package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Account-level errors
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("malformed credentials")
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrUnreachable        = fmt.Errorf("account unreachable")

	// Transient errors
	ErrTimeout     = fmt.Errorf("operation timed out")
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrUpstream    = fmt.Errorf("upstream server error")

	// Per-record errors
	ErrAPIRequest = fmt.Errorf("API request failed")
	ErrConflict   = fmt.Errorf("record conflict")
	ErrRejected   = fmt.Errorf("record rejected")
	ErrNotFound   = fmt.Errorf("not found")

	// Job errors
	ErrJobNotFound        = fmt.Errorf("job not found")
	ErrJobTerminal        = fmt.Errorf("job already finished")
	ErrInvalidTransition  = fmt.Errorf("invalid status transition")
	ErrDestinationBusy    = fmt.Errorf("destination account has a running job")
	ErrJobLeased          = fmt.Errorf("job is owned by a running engine")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
