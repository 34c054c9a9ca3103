package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/handler"
	"github.com/stemsi/exstem-player/internal/middleware"
	"github.com/stemsi/exstem-player/internal/service"
	"github.com/stemsi/exstem-player/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestSetupRouter(t *testing.T) {
	tokens := service.NewTokenService("secret", time.Hour)
	svc := service.NewSessionService(service.SessionDeps{Store: store.NewMemory()}, tokens, zerolog.Nop())
	limiter := middleware.NewRateLimiter(1, time.Hour)
	defer limiter.Stop()

	r := SetupRouter(tokens, &Handlers{
		Session: handler.NewSessionHandler(svc, zerolog.Nop()),
		WS:      handler.NewWSHandler(svc, zerolog.Nop(), nil),
		System:  handler.NewSystemHandler(nil, svc, zerolog.Nop()),
	}, limiter, &config.Config{GinMode: gin.TestMode}, zerolog.Nop())

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/system/status", http.StatusOK},
		{http.MethodPost, "/api/v1/sessions", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/sessions", http.StatusTooManyRequests},
		{http.MethodGet, "/api/v1/sessions/abc", http.StatusUnauthorized},
		{http.MethodGet, "/ws/v1/sessions/abc/stream", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}
}
