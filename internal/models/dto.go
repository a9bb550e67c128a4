package models

import (
	"fmt"
	"time"
)

// HealthResponse is returned by health check
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Checks      map[string]string `json:"checks,omitempty"`
	LiveClients int               `json:"liveClients"`
	Cleanup     interface{}       `json:"cleanup,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-2xx response from the Polish Peaks API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether the API rejected the caller's credentials
func (e *APIError) IsUnauthorized() bool {
	return e.Status == 401
}

// NewAPIError builds the default error for a status without a usable body
func NewAPIError(status int) *APIError {
	return &APIError{
		Status:  status,
		Message: fmt.Sprintf("Request failed with status: %d", status),
	}
}
