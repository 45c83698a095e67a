package utils

import "time"

// APIResponse is the envelope every HTTP handler writes. Error carries the
// machine-readable cause and is only set on failures.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SuccessResponse wraps a payload in the envelope with Success set.
func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// ErrorResponse builds the failure envelope. message is for humans, cause
// for clients that branch on it.
func ErrorResponse(message, cause string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     cause,
		Timestamp: time.Now(),
	}
}
