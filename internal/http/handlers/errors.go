package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/restaurant-backoffice/internal/api"
	"github.com/tbourn/restaurant-backoffice/internal/services"
)

// Codes used only by the router fallbacks.
const (
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
)

// writeError maps a service or decoding error onto the envelope:
//
//	*services.ValidationError           -> 422 validation_failed (+fields)
//	ErrInvalidSort, ErrInvalidFilter    -> 400 bad_request
//	malformed JSON body                 -> 400 bad_request
//	body over the size limit            -> 413 payload_too_large
//	services.ErrNotFound                -> 404 not_found
//	anything else                       -> 500 internal_error
func writeError(c *gin.Context, err error) {
	var (
		ve     *services.ValidationError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ve):
		failFields(c, http.StatusUnprocessableEntity, api.CodeValidationFailed, "validation failed", ve.Fields)
	case errors.Is(err, services.ErrInvalidSort), errors.Is(err, services.ErrInvalidFilter):
		fail(c, http.StatusBadRequest, api.CodeBadRequest, err.Error())
	case errors.As(err, &tooBig):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
	case errors.Is(err, errBadBody):
		fail(c, http.StatusBadRequest, api.CodeBadRequest, "request body must be a JSON object")
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, api.CodeNotFound, "record not found")
	default:
		fail(c, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		_ = c.Error(err)
	}
}

// errBadBody wraps every body decoding failure other than the size limit.
var errBadBody = errors.New("malformed body")
