package oauthmodel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorResponse is the error body used by the resource server: {"detail": "..."}.
// Validation failures from some frameworks send a list of objects instead of
// a string; Message flattens either form.
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Message returns the human readable error detail or fallback when the body
// carries none.
func (e *ErrorResponse) Message(fallback string) string {
	if e == nil {
		return fallback
	}
	if len(e.Detail) > 0 {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil && s != "" {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(e.Detail, &items); err == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	if e.Error != "" {
		return e.Error
	}
	return fallback
}

// NewErrorResponse builds a {"detail": msg} body.
func NewErrorResponse(format string, args ...any) ErrorResponse {
	detail, _ := json.Marshal(fmt.Sprintf(format, args...))
	return ErrorResponse{Detail: detail}
}
