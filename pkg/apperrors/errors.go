package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidAPIKey   = errors.New("invalid or inactive API key")
	ErrTerminalCommand = errors.New("command already in a terminal state")
	ErrZoneRequired    = errors.New("no zone specified and device has no assigned zone")
)
