package task

import (
	"errors"
)

var (
	// ErrTaskNotFound is returned when a task does not exist or is outside the caller's scope.
	ErrTaskNotFound = errors.New("task not found")
	// ErrSubtaskNotFound is returned when a subtask does not exist or is outside the caller's scope.
	ErrSubtaskNotFound = errors.New("subtask not found")
	// ErrTitleRequired is returned when a title is missing or blank.
	ErrTitleRequired = errors.New("title is required")
	// ErrStatusRequired is returned when a status change carries no status.
	ErrStatusRequired = errors.New("status is required")
	// ErrPriorityRequired is returned when a priority change carries no priority.
	ErrPriorityRequired = errors.New("priority is required")
	// ErrIsDoneRequired is returned when a subtask status change omits isDone.
	ErrIsDoneRequired = errors.New("isDone is required")
	// ErrNoIDs is returned by bulk operations given an empty id list.
	ErrNoIDs = errors.New("no ids provided")
	// ErrInvalidStatus is returned for unknown statuses when strict enums are on.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidPriority is returned for unknown priorities when strict enums are on.
	ErrInvalidPriority = errors.New("invalid priority")
	// ErrInvalidDueDate is returned when a due date cannot be parsed.
	ErrInvalidDueDate = errors.New("invalid due date")
	// ErrTooManyImages is returned when a request carries more images than allowed.
	ErrTooManyImages = errors.New("too many images")
)

// MediaError wraps a failed call to the media store.
type MediaError struct {
	Op  string
	Err error
}

func (e *MediaError) Error() string {
	return "media " + e.Op + " failed: " + e.Err.Error()
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrTitleRequired),
		errors.Is(err, ErrStatusRequired),
		errors.Is(err, ErrPriorityRequired),
		errors.Is(err, ErrIsDoneRequired),
		errors.Is(err, ErrNoIDs),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrInvalidPriority),
		errors.Is(err, ErrInvalidDueDate),
		errors.Is(err, ErrTooManyImages):
		return true
	}
	return false
}

// IsNotFound reports whether err means the referenced task or subtask is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrSubtaskNotFound)
}
