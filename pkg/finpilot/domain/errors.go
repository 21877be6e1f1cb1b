package domain

import "errors"

// Shared error taxonomy. ErrConditionNotMet is a planned skip, not a
// failure; callers must not count it against a workflow's success rate.
var (
	ErrNotFound        = errors.New("not found")
	ErrDisabled        = errors.New("disabled")
	ErrAlreadyRunning  = errors.New("already running")
	ErrConditionNotMet = errors.New("condition not met")
	ErrGateway         = errors.New("gateway failure")
	ErrValidation      = errors.New("validation failure")
)
