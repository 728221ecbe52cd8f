package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is the single normalized failure shape produced by the transport
// adapter. Status carries the HTTP status code, or 0 when no response was
// received at all. Data holds the raw error body when the server returned
// one. Every layer above the adapter classifies errors by Status alone.
type Error struct {
	Status  int
	Data    json.RawMessage
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

// StatusOf extracts the normalized status from an error chain. The second
// return is false when the error did not originate from the transport
// adapter.
func StatusOf(err error) (int, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}

// IsStatus reports whether the error chain contains a transport error with
// the given status code.
func IsStatus(err error, status int) bool {
	code, ok := StatusOf(err)
	return ok && code == status
}

// newTransportError builds the status-0 error used when the server could not
// be reached or the request never went out.
func newTransportError(message string) *Error {
	data, _ := json.Marshal(map[string]string{"error": message})
	return &Error{Status: 0, Data: data, Message: message}
}

// messageFromBody pulls a human-readable message out of a server error body.
// Django-style bodies use "detail"; the adapter's own synthetic bodies use
// "error".
func messageFromBody(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return ""
}
