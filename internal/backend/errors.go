package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized соответствует ответам 401 и 403.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound соответствует ответу 404.
	ErrNotFound = errors.New("not found")
	// ErrMalformedResponse возвращается, если ответ не содержит обязательных полей.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// APIError описывает ответ бэкенда с кодом состояния вне диапазона 2xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.StatusCode, e.Message)
}

// Is позволяет сравнивать ошибку с ErrUnauthorized и ErrNotFound через errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

func newAPIError(status int, body []byte) *APIError {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// errorMessage извлекает текст ошибки из полей message, error.message или error.
func errorMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Error) == 0 {
		return ""
	}

	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}
	var plain string
	if err := json.Unmarshal(payload.Error, &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	return ""
}
