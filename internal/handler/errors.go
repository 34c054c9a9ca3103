package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stemsi/exstem-player/internal/session"
)

// sessionErrorCode maps a controller error to an HTTP status and error code.
func sessionErrorCode(err error) (int, response.ErrCode) {
	var se *session.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case session.KindAlreadySubmitted:
			return http.StatusConflict, response.ErrAlreadySubmitted
		case session.KindQuizUnavailable:
			return http.StatusForbidden, response.ErrQuizUnavailable
		case session.KindValidation:
			return http.StatusBadRequest, response.ErrValidation
		case session.KindNetwork:
			return http.StatusBadGateway, response.ErrBackendUnavailable
		case session.KindIntegrityViolation:
			return http.StatusForbidden, response.ErrIntegrityViolation
		case session.KindKeyDecode:
			return http.StatusUnprocessableEntity, response.ErrKeyDecode
		case session.KindInvalidTransition:
			return http.StatusConflict, response.ErrInvalidTransition
		}
	}
	switch {
	case errors.Is(err, session.ErrSubmitInFlight):
		return http.StatusConflict, response.ErrSubmitInFlight
	case errors.Is(err, session.ErrClosed), errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failSession writes err using the envelope. Validation errors carry their
// field map; backend failures carry the backend's own message.
func failSession(c *gin.Context, err error) {
	status, code := sessionErrorCode(err)
	if status >= http.StatusInternalServerError {
		response.Logger(c).Error().Err(err).Str("code", string(code)).Msg("Session request failed")
	}

	var se *session.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case session.KindValidation:
			response.FailWithFields(c, status, code, se.Fields)
			return
		case session.KindNetwork:
			response.FailWithDetail(c, status, code, se.Message)
			return
		}
	}
	response.Fail(c, status, code)
}
