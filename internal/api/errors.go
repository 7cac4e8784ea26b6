package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/signalsfoundry/contact-scheduler/core"
	"github.com/signalsfoundry/contact-scheduler/internal/availability"
	"github.com/signalsfoundry/contact-scheduler/internal/lock"
	"github.com/signalsfoundry/contact-scheduler/internal/store"
	"github.com/signalsfoundry/contact-scheduler/kb"
	"github.com/signalsfoundry/contact-scheduler/model"
)

// statusFromError maps scheduler errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, model.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidTLE),
		errors.Is(err, availability.ErrInvalidState):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, kb.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, availability.ErrConflict):
		return http.StatusConflict

	case errors.Is(err, availability.ErrUnavailable),
		errors.Is(err, core.ErrPropagation),
		errors.Is(err, lock.ErrLockNotAcquired):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}
