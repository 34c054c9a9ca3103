package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stemsi/exstem-player/internal/session"
	"github.com/stemsi/exstem-player/internal/validator"
)

// SessionHandler handles the join and snapshot endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// CreateSession godoc
// POST /api/v1/sessions
// Accepts the rules, joins the quiz and returns the questions with a stream token.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.JoinInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if !req.AcceptedRules {
		response.Fail(c, http.StatusBadRequest, response.ErrRulesRequired)
		return
	}

	joined, err := h.sessionService.Create(c.Request.Context(), req)
	if err != nil {
		var se *session.Error
		if !errors.As(err, &se) {
			h.log.Error().Err(err).Str("quiz_id", req.QuizID).Msg("Create session error")
		}
		failSession(c, err)
		return
	}

	response.Success(c, http.StatusCreated, joined)
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
// Returns the current snapshot of the session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, _, err := h.sessionService.Get(c.Param("session_id"))
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.View())
}

// DeleteSession godoc
// DELETE /api/v1/sessions/:session_id
// Abandons the session. A submission already in flight still completes.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := c.Param("session_id")
	if _, _, err := h.sessionService.Get(id); err != nil {
		failSession(c, err)
		return
	}
	h.sessionService.Remove(id)
	response.Success(c, http.StatusOK, gin.H{})
}
