// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

// StatusError carries an explicit status for errors the sentinels do not cover.
type StatusError struct {
	Status     int
	Title      string
	RetryAfter time.Duration
	Err        error
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// WithStatus wraps err with an HTTP status and title.
func WithStatus(err error, status int, title string) error {
	return &StatusError{Status: status, Title: title, Err: err}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		if se.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(se.RetryAfter))
		}
		detail := se.Err.Error()
		if se.Status >= http.StatusInternalServerError && se.Status != http.StatusBadGateway {
			detail = ""
		}
		Problem(w, se.Status, se.Title, detail)
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// retryAfterSeconds rounds up to whole seconds; a positive wait never becomes "0".
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
