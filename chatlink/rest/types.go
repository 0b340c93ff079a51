package rest

import (
	"encoding/json"
	"fmt"
)

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request body for user login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UploadResponse is returned once a file has been accepted for processing.
type UploadResponse struct {
	FileID  string `json:"file_id"`
	Message string `json:"message,omitempty"`
}

// StatusResponse describes the processing state of an uploaded file.
type StatusResponse struct {
	FileID string `json:"file_id,omitempty"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Detail)
}

// errorBody covers both {"detail": ...} and {"error": ...} payloads.
// detail may be a string or a structured validation list.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Detail = string(body)
		return apiErr
	}

	switch {
	case len(eb.Detail) > 0:
		var s string
		if err := json.Unmarshal(eb.Detail, &s); err == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(eb.Detail)
		}
	case eb.Error != "":
		apiErr.Detail = eb.Error
	default:
		apiErr.Detail = string(body)
	}
	return apiErr
}
