package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/backend"
	"github.com/stemsi/exstem-player/internal/fingerprint"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stemsi/exstem-player/internal/store"
	"github.com/stemsi/exstem-player/internal/validator"
	ws "github.com/stemsi/exstem-player/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type stubBackend struct {
	mu        sync.Mutex
	joinErr   error
	submitErr error
	submitted []model.Submission
}

func (b *stubBackend) Join(ctx context.Context, quizID, name string) (*model.Quiz, error) {
	if b.joinErr != nil {
		return nil, b.joinErr
	}
	qs := make([]model.Question, 2)
	for i := range qs {
		qs[i] = model.Question{
			Index:  i,
			Prompt: "Q",
			Options: [4]model.Option{
				{Key: model.Opt1, Text: "a"}, {Key: model.Opt2, Text: "b"},
				{Key: model.Opt3, Text: "c"}, {Key: model.Opt4, Text: "d"},
			},
			CorrectKeyEncoded: "opt2",
		}
	}
	return &model.Quiz{ID: quizID, Title: "Kimia", Active: true, Questions: qs,
		Config: model.SessionConfig{RevealScoreOnSubmit: true}}, nil
}

func (b *stubBackend) Submit(ctx context.Context, sub model.Submission) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, sub)
	return b.submitErr
}

type testEnv struct {
	engine  *gin.Engine
	svc     *service.SessionService
	tokens  *service.TokenService
	backend *stubBackend
	store   *store.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		tokens:  service.NewTokenService("secret", time.Hour),
		backend: &stubBackend{},
		store:   store.NewMemory(),
	}
	env.svc = service.NewSessionService(service.SessionDeps{Backend: env.backend, Store: env.store},
		env.tokens, zerolog.Nop())

	sh := NewSessionHandler(env.svc, zerolog.Nop())
	wh := NewWSHandler(env.svc, zerolog.Nop(), nil)

	r := gin.New()
	r.Use(response.RequestContext(zerolog.Nop()))
	r.POST("/api/v1/sessions", sh.CreateSession)
	sess := r.Group("/api/v1/sessions/:session_id", middleware.RequireSessionToken(env.tokens))
	sess.GET("", sh.GetSession)
	sess.DELETE("", sh.DeleteSession)
	r.GET("/ws/v1/sessions/:session_id/stream", middleware.RequireSessionToken(env.tokens), wh.SessionStream)
	env.engine = r
	return env
}

func joinBody() map[string]interface{} {
	return map[string]interface{}{
		"identity": model.Identity{
			ParticipantName: "Budi", Email: "budi@example.com",
			StudentClass: "XI", Division: "IPA 2", RollNo: "12",
		},
		"quiz_id":        "17",
		"accepted_rules": true,
		"device":         fingerprint.Environment{UserAgent: "Mozilla/5.0", Language: "id-ID", ScreenWidth: 1366, ScreenHeight: 768},
	}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func (env *testEnv) join(t *testing.T) service.Joined {
	t.Helper()
	w, resp := env.do(t, http.MethodPost, "/api/v1/sessions", "", joinBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var joined service.Joined
	require.NoError(t, json.Unmarshal(raw, &joined))
	t.Cleanup(func() { env.svc.Remove(joined.SessionID) })
	return joined
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	joined := env.join(t)

	assert.NotEmpty(t, joined.SessionID)
	assert.NotEmpty(t, joined.Token)
	assert.Equal(t, "Kimia", joined.Title)
	require.Len(t, joined.Questions, 2)
	assert.Empty(t, joined.Questions[0].CorrectKeyEncoded, "correct keys must not leave the server")
}

func TestCreateSessionErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(body map[string]interface{}, env *testEnv)
		status  int
		code    response.ErrCode
		message string
	}{
		{
			name:   "missing quiz id",
			mutate: func(b map[string]interface{}, _ *testEnv) { delete(b, "quiz_id") },
			status: http.StatusBadRequest, code: response.ErrValidation,
		},
		{
			name:   "rules not accepted",
			mutate: func(b map[string]interface{}, _ *testEnv) { b["accepted_rules"] = false },
			status: http.StatusBadRequest, code: response.ErrRulesRequired,
		},
		{
			name: "invalid email",
			mutate: func(b map[string]interface{}, _ *testEnv) {
				id := b["identity"].(model.Identity)
				id.Email = "budi"
				b["identity"] = id
			},
			status: http.StatusBadRequest, code: response.ErrValidation,
		},
		{
			name:   "inactive quiz",
			mutate: func(_ map[string]interface{}, env *testEnv) { env.backend.joinErr = backend.ErrQuizUnavailable },
			status: http.StatusForbidden, code: response.ErrQuizUnavailable,
		},
		{
			name: "backend down",
			mutate: func(_ map[string]interface{}, env *testEnv) {
				env.backend.joinErr = backend.ErrRequest
			},
			status: http.StatusBadGateway, code: response.ErrBackendUnavailable,
			message: backend.ErrRequest.Error(),
		},
		{
			name: "already submitted",
			mutate: func(_ map[string]interface{}, env *testEnv) {
				fp := fingerprint.Compute(joinBody()["device"].(fingerprint.Environment))
				require.NoError(t, store.WriteReplayLock(context.Background(), env.store, "17", fp))
			},
			status: http.StatusConflict, code: response.ErrAlreadySubmitted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			body := joinBody()
			tt.mutate(body, env)

			w, resp := env.do(t, http.MethodPost, "/api/v1/sessions", "", body)
			assert.Equal(t, tt.status, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error.Message)
			}
			assert.Zero(t, env.svc.Len())
		})
	}
}

func TestGetAndDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	joined := env.join(t)
	path := "/api/v1/sessions/" + joined.SessionID

	w, resp := env.do(t, http.MethodGet, path, joined.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := resp.Data.(map[string]interface{})
	assert.Equal(t, "in_progress", view["state"].(map[string]interface{})["kind"])
	assert.EqualValues(t, 2, view["total"])

	w, _ = env.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodDelete, path, joined.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = env.do(t, http.MethodGet, path, joined.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrSessionNotFound, resp.Error.Code)
}

type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) wsMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestSessionStreamFlow(t *testing.T) {
	env := newTestEnv(t)
	joined := env.join(t)

	srv := httptest.NewServer(env.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/v1/sessions/" + joined.SessionID + "/stream?token=" + joined.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, string(ws.EventView))

	send := func(p ws.RequestPayload) {
		require.NoError(t, conn.WriteJSON(p))
	}

	send(ws.RequestPayload{Action: ws.ActionSelect, Index: 0, Option: "b"})
	readUntil(t, conn, string(ws.EventAck))

	send(ws.RequestPayload{Action: ws.ActionAdvance})
	var nav ws.NavigationResponse
	require.NoError(t, json.Unmarshal(readUntil(t, conn, string(ws.EventNavigation)).Data, &nav))
	assert.Equal(t, "refused", nav.Outcome)
	assert.Equal(t, []int{1}, nav.Unanswered)

	send(ws.RequestPayload{Action: ws.ActionSelect, Index: 1, Option: "z"})
	var wsErr ws.ErrorResponse
	require.NoError(t, json.Unmarshal(readUntil(t, conn, string(ws.EventError)).Data, &wsErr))
	assert.Equal(t, string(response.ErrValidation), wsErr.Code)

	send(ws.RequestPayload{Action: ws.ActionSelect, Index: 1, Option: "a"})
	readUntil(t, conn, string(ws.EventAck))

	send(ws.RequestPayload{Action: ws.ActionAdvance})
	require.NoError(t, json.Unmarshal(readUntil(t, conn, string(ws.EventNavigation)).Data, &nav))
	assert.Equal(t, "confirm", nav.Outcome)

	send(ws.RequestPayload{Action: ws.ActionConfirm})
	var result struct {
		Result model.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, conn, "result").Data, &result))
	assert.Equal(t, 1, result.Result.Score)
	assert.Equal(t, 2, result.Result.OutOf)
	assert.True(t, result.Result.Revealed)

	env.backend.mu.Lock()
	assert.Len(t, env.backend.submitted, 1)
	env.backend.mu.Unlock()

	send(ws.RequestPayload{Action: ws.ActionPing})
	readUntil(t, conn, string(ws.EventPong))
}

func TestSessionStreamRejectsForeignToken(t *testing.T) {
	env := newTestEnv(t)
	a := env.join(t)
	b := env.join(t)

	w, _ := env.do(t, http.MethodGet, "/api/v1/sessions/"+a.SessionID, b.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSessionStreamSubprotocolToken(t *testing.T) {
	env := newTestEnv(t)
	joined := env.join(t)

	srv := httptest.NewServer(env.engine)
	defer srv.Close()

	dialer := websocket.Dialer{Subprotocols: []string{middleware.TokenSubprotocol, joined.Token}}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/" + joined.SessionID + "/stream"
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, middleware.TokenSubprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))
	readUntil(t, conn, string(ws.EventView))
}
