package task

import "errors"

var (
	// ErrInvalidInput means a submission carried no valid addresses.
	ErrInvalidInput = errors.New("no valid ip addresses")
	// ErrNotFound means the task id is unknown to the registry.
	ErrNotFound = errors.New("task not found")
	// ErrNotReady means results were requested before the task produced any.
	ErrNotReady = errors.New("task not completed")
)
