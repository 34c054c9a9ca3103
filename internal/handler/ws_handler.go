package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/pagination"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stemsi/exstem-player/internal/session"
	ws "github.com/stemsi/exstem-player/internal/websocket"
)

const (
	eventBuffer  = 64
	actionBuffer = 16
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode). A client that
// passes its token as a subprotocol gets the marker echoed back.
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{middleware.TokenSubprotocol},
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams controller events and accepts participant actions.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream?token=
// Upgrades to WebSocket. Actions run in order on one goroutine so a blur
// confirmation can wait for its confirm_stay reply while reads continue.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctrl, stream, err := h.sessionService.Get(claims.SessionID)
	if err != nil {
		failSession(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", claims.SessionID).
		Str("quiz_id", claims.QuizID).
		Logger()
	wsLog.Info().Msg("Participant connected")

	w := ws.NewWriter(conn)
	events, unsubscribe := stream.Subscribe(eventBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request.Context())
	actions := make(chan ws.RequestPayload, actionBuffer)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if err := w.WriteJSON(ws.Event(ev.Type), ev); err != nil {
					wsLog.Debug().Err(err).Msg("Event write failed")
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-actions:
				h.dispatch(ctx, ctrl, w, msg)
			}
		}
	}()

	w.WriteJSON(ws.EventView, ctrl.View())

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionPing:
			w.WriteJSON(ws.EventPong, nil)
		case ws.ActionConfirmStay:
			stream.ResolveConfirm(msg.Stay)
		case ws.ActionView:
			w.WriteJSON(ws.EventView, ctrl.View())
		default:
			select {
			case actions <- msg:
			default:
				w.WriteError(string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded), nil)
			}
		}
	}

	cancel()
	wg.Wait()
}

// dispatch runs one queued action against the controller and writes the reply.
func (h *WSHandler) dispatch(ctx context.Context, ctrl *session.Controller, w *ws.Writer, msg ws.RequestPayload) {
	var err error

	switch msg.Action {
	case ws.ActionSelect:
		err = ctrl.Select(msg.Index, msg.Option)
	case ws.ActionAdvance:
		var out pagination.Outcome
		if out, err = ctrl.Advance(msg.Force); err == nil {
			w.WriteJSON(ws.EventNavigation, ws.NavigationResponse{
				Outcome:    out.Kind.String(),
				Section:    ctrl.State().Section,
				Unanswered: out.Unanswered,
			})
			return
		}
	case ws.ActionBack:
		err = ctrl.Back()
	case ws.ActionGoTo:
		err = ctrl.GoToSection(msg.Section)
	case ws.ActionJump:
		var section int
		if section, err = ctrl.JumpTo(msg.Question); err == nil {
			w.WriteJSON(ws.EventNavigation, ws.NavigationResponse{Outcome: pagination.Moved.String(), Section: section})
			return
		}
	case ws.ActionCancel:
		err = ctrl.Cancel()
	case ws.ActionConfirm:
		// a submission outlives the connection that started it
		_, err = ctrl.Confirm(context.WithoutCancel(ctx))
	case ws.ActionSubmit:
		_, err = ctrl.Submit(context.WithoutCancel(ctx))
	case ws.ActionSignal:
		if msg.Signal == nil {
			w.WriteError(string(response.ErrInvalidPayload), "signal is required", nil)
			return
		}
		sig, ok := msg.Signal.ToSignal()
		if !ok {
			return
		}
		ctrl.Signal(ctx, sig)
		return
	default:
		h.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		w.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), nil)
		return
	}

	if err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteJSON(ws.EventAck, ws.AckResponse{Action: msg.Action})
}

func writeSessionError(w *ws.Writer, err error) {
	_, code := sessionErrorCode(err)
	msg := response.GetMessage(code)
	var fields map[string]string
	var se *session.Error
	if errors.As(err, &se) {
		fields = se.Fields
		if se.Kind == session.KindNetwork {
			msg = se.Message
		}
	}
	w.WriteError(string(code), msg, fields)
}
