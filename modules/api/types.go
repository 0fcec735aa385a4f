package api

import (
	domain "github.com/example/taskboard/domain/user"
)

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  domain.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// MeResponse is returned by the current-user endpoint.
type MeResponse struct {
	User domain.PublicUser `json:"user"`
}

// IDsRequest carries the ids of a bulk operation.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// StatusRequest changes a task status.
type StatusRequest struct {
	Status string `json:"status"`
}

// PriorityRequest changes a task priority. A nil Priority was omitted.
type PriorityRequest struct {
	Priority *string `json:"priority"`
}

// SubtaskRequest creates or renames a subtask.
type SubtaskRequest struct {
	Title string `json:"title"`
}

// SubtaskStatusRequest sets isDone on one subtask.
type SubtaskStatusRequest struct {
	IsDone *bool `json:"isDone"`
}

// BulkSubtaskStatusRequest sets isDone on several subtasks.
type BulkSubtaskStatusRequest struct {
	IDs    []string `json:"ids"`
	IsDone *bool    `json:"isDone"`
}

// MessageResponse acknowledges a mutation without a body.
type MessageResponse struct {
	Message string `json:"message"`
}

// CountResponse acknowledges a bulk mutation.
type CountResponse struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
