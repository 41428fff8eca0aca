package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Local store errors
	ErrValidation    = fmt.Errorf("validation failed")
	ErrDuplicateVote = fmt.Errorf("%w: duplicate vote", ErrValidation)
	ErrNotFound      = fmt.Errorf("record not found")

	// Sync errors
	ErrOffline        = fmt.Errorf("remote unreachable")
	ErrTransient      = fmt.Errorf("transient failure")
	ErrPermanent      = fmt.Errorf("permanent rejection")
	ErrConflict       = fmt.Errorf("conflict: server has a newer version")
	ErrSyncInProgress = fmt.Errorf("sync already in progress")
	ErrTimeout        = fmt.Errorf("operation timed out")

	// API and service errors
	ErrNotAuthenticated   = fmt.Errorf("not authenticated")
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNoMatch            = fmt.Errorf("no matching title found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
