package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fastygo/deadlines/domain"
)

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Unwrap exposes the domain classification so domain.IsDomainError works on backend errors.
func (e *APIError) Unwrap() error {
	return domain.NewError(codeForStatus(e.StatusCode), e.Error())
}

// TransportError means no response reached us at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{e.Err, domain.ErrBackendUnavailable}
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// StatusCode returns the backend status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsTransport reports whether err means the backend could not be reached.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{StatusCode: status, Detail: detailFrom(body)}
}

// detailFrom extracts the backend's message from an error body. FastAPI style
// {"detail": "..."} and {"detail": [{"msg": "..."}]} are both understood; anything
// unparseable yields "".
func detailFrom(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if text := textOf(payload.Detail); text != "" {
		return text
	}
	if payload.Message != "" {
		return payload.Message
	}
	return textOf(payload.Error)
}

func textOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	return ""
}

func codeForStatus(status int) domain.ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return domain.ErrCodeForbidden
	case status == http.StatusNotFound:
		return domain.ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return domain.ErrCodeTooManyRequests
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return domain.ErrCodeUnavailable
	case status >= 400 && status < 500:
		return domain.ErrCodeInvalid
	default:
		return domain.ErrCodeInternal
	}
}
