package service

import (
	"context"
	"errors"
	"net"

	"narration-service/internal/entity"
)

// coded is implemented by errors from external services that already know
// their failure class (see provider.Error).
type coded interface {
	ErrorCode() entity.ErrorCode
}

// Classification is the retry-relevant view of an error.
type Classification struct {
	Code      entity.ErrorCode
	Severity  entity.Severity
	Retryable bool
}

// Classify maps an error raised during step to its code, severity and
// retryability. It is the only place that makes this decision.
func Classify(step string, err error) Classification {
	code := codeOf(err)
	return Classification{
		Code:      code,
		Severity:  entity.DeriveSeverity(step, code),
		Retryable: retryable(step, code),
	}
}

func codeOf(err error) entity.ErrorCode {
	var c coded
	var netErr net.Error
	switch {
	case err == nil:
		return entity.CodeUnknown
	case errors.Is(err, entity.ErrValidation):
		return entity.CodeValidation
	case errors.Is(err, entity.ErrInvalidTransition):
		return entity.CodeInvalidTransition
	case errors.Is(err, ErrJobNotActive), errors.Is(err, context.Canceled):
		return entity.CodeCancelled
	case errors.As(err, &c):
		return c.ErrorCode()
	case errors.Is(err, context.DeadlineExceeded):
		return entity.CodeTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return entity.CodeTimeout
		}
		return entity.CodeNetwork
	}
	return entity.CodeUnknown
}

func retryable(step string, code entity.ErrorCode) bool {
	switch entity.ItemStatus(step) {
	case entity.ItemMerging, entity.ItemUploading:
		return false
	}
	switch code {
	case entity.CodeTimeout, entity.CodeNetwork, entity.CodeServiceUnavailable, entity.CodeUnknown:
		return true
	}
	return false
}
