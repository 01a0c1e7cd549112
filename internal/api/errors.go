package api

import (
	"errors"
	"net/http"

	"github.com/markoval/stylist-api/internal/domain"
	"github.com/markoval/stylist-api/internal/service"
)

// admissibilityStatus maps the entitlement check errors onto HTTP
// statuses and client-safe messages.
func admissibilityStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnknownStyle):
		return http.StatusBadRequest, "unknown style"
	case errors.Is(err, service.ErrNotEntitled):
		return http.StatusForbidden, "no active session for this email"
	case errors.Is(err, service.ErrStyleUnavailable):
		return http.StatusConflict, "style already used in this session"
	default:
		return http.StatusInternalServerError, "failed to check session"
	}
}
