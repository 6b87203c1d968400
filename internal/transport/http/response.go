package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"narration-service/internal/entity"
	"narration-service/internal/repository"
	"narration-service/internal/service"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// statusFor maps domain errors onto HTTP codes. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrInvalidTransition),
		errors.Is(err, entity.ErrJobNotModifiable),
		errors.Is(err, entity.ErrCounterOverflow),
		errors.Is(err, service.ErrJobNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
