package task

import (
	"github.com/example/taskboard/modules/media"
)

// CreateTaskInput carries the raw fields of a create request.
// Tags is JSON text; Status and Priority are matched case-insensitively.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     string
	Tags        string
	Files       []media.File
}

// UpdateTaskInput carries the raw fields of an update request.
// A nil field was absent from the request and is left unchanged.
type UpdateTaskInput struct {
	Title          *string
	Description    *string
	Status         *string
	Priority       *string
	DueDate        *string
	Tags           *string
	RemoveImageIDs *string
	Files          []media.File
}

// Options tunes the lifecycle service.
type Options struct {
	// StrictEnums makes update, status and priority changes reject unknown
	// values instead of storing them verbatim.
	StrictEnums bool
	// MaxImages caps the files accepted by one create or update.
	MaxImages int
}

// DefaultOptions returns the lenient defaults with a five image cap.
func DefaultOptions() Options {
	return Options{MaxImages: 5}
}
