// Package domain defines domain-specific errors.
// These errors represent business logic failures and are independent of infrastructure.
package domain

import (
	"errors"
	"fmt"
)

// Common errors that services can return.
var (
	// ErrTrackNotFound is returned when a URI is not part of the queue or playlist.
	ErrTrackNotFound = errors.New("track not found")

	// ErrPlaylistNotFound is returned when a named playlist does not exist.
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrQueueEmpty is returned when queue operations are attempted on an empty queue.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrInvalidIndex is returned when a queue index is out of bounds.
	ErrInvalidIndex = errors.New("invalid queue index")

	// ErrInvalidPosition is returned when seeking to an invalid position.
	ErrInvalidPosition = errors.New("invalid playback position")

	// ErrInvalidState is returned when a command needs something that is not there,
	// e.g. TOGGLE_LIKE with nothing playing.
	ErrInvalidState = errors.New("invalid session state")

	// ErrUnknownCommand is returned for custom commands the session does not handle.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnknownParent is returned when browsing children of an unknown node.
	ErrUnknownParent = errors.New("unknown browse parent")

	// ErrConnectionClosed is returned by a released session connection.
	ErrConnectionClosed = errors.New("session connection closed")

	// ErrSessionReleased is returned when the session has been torn down.
	ErrSessionReleased = errors.New("session released")

	// ErrSeekUnsupported is returned when the current item cannot be seeked.
	ErrSeekUnsupported = errors.New("seek not supported for current item")

	// ErrDurationUnknown is returned when a fractional seek is requested before
	// the duration is known.
	ErrDurationUnknown = errors.New("duration unknown")

	// ErrUnplayable is reported by the player for media it cannot render.
	ErrUnplayable = errors.New("unplayable media")
)

// PlayerError represents an error raised by the media engine.
type PlayerError struct {
	Op      string // Operation that failed (e.g., "prepare", "seek")
	URI     string // Media URI (if applicable)
	Code    int    // Engine error code
	Message string // Error message
	Err     error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *PlayerError) Error() string {
	if e.URI != "" {
		return fmt.Sprintf("player %s failed for '%s': %s (code: %d)", e.Op, e.URI, e.Message, e.Code)
	}
	return fmt.Sprintf("player %s failed: %s (code: %d)", e.Op, e.Message, e.Code)
}

// Unwrap returns the underlying error.
func (e *PlayerError) Unwrap() error {
	return e.Err
}

// NewPlayerError creates a new PlayerError.
func NewPlayerError(op, uri string, code int, message string, err error) *PlayerError {
	return &PlayerError{
		Op:      op,
		URI:     uri,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// RepositoryError represents an error from a repository.
// This wraps persistence layer errors with additional context.
type RepositoryError struct {
	Op      string // Operation that failed (e.g., "insert", "tracks", "delete")
	Type    string // Repository type (e.g., "playlist", "preferences")
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s.%s failed: %s", e.Type, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewRepositoryError creates a new RepositoryError.
func NewRepositoryError(op, repoType, message string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		Type:    repoType,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string      // Field that failed validation
	Value   interface{} // Value that failed validation
	Message string      // Error message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ServiceError represents an error from a service layer operation.
type ServiceError struct {
	Service string // Service name (e.g., "Session", "QueueStore")
	Op      string // Operation that failed
	Message string // Error message
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s.%s failed: %s", e.Service, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op, message string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// CommandError is the error result of a custom session command.
type CommandError struct {
	Command CommandName
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command CommandName, err error) *CommandError {
	return &CommandError{Command: command, Err: err}
}
