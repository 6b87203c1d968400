// Package provider holds the adapters for the external steps of the
// pipeline: text generation, speech synthesis, audio storage and upload.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/openai/openai-go/v3"

	"narration-service/internal/entity"
)

// Error is a failure of an external service that already knows its class.
type Error struct {
	Code       entity.ErrorCode
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Code, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCode() entity.ErrorCode { return e.Code }

// codeForStatus maps an HTTP status of an upstream API to an error code.
func codeForStatus(status int) entity.ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return entity.CodeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return entity.CodeAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return entity.CodeTimeout
	case status >= 500:
		return entity.CodeServiceUnavailable
	case status >= 400:
		return entity.CodeValidation
	}
	return entity.CodeUnknown
}

func mapOpenAIError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &Error{
			Code:       codeForStatus(apiErr.StatusCode),
			Op:         op,
			StatusCode: apiErr.StatusCode,
			Err:        errors.New(msg),
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: entity.CodeTimeout, Op: op, Err: err}
	case errors.As(err, &netErr):
		code := entity.CodeNetwork
		if netErr.Timeout() {
			code = entity.CodeTimeout
		}
		return &Error{Code: code, Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
