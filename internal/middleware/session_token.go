package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-player/internal/response"
	"github.com/stemsi/exstem-player/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for the session token claims.
	ContextKeyClaims = "claims"

	// TokenSubprotocol marks a WebSocket handshake whose next offered
	// subprotocol is the session token: "exstem.token, <token>". Browsers
	// cannot set headers on a WebSocket handshake.
	TokenSubprotocol = "exstem.token"
)

// RequireSessionToken admits requests carrying a valid session token for
// the :session_id in the path. The token is read from, in order, the
// Authorization bearer header, the WebSocket subprotocol list and the
// ?token= query param.
func RequireSessionToken(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := sessionToken(c.Request)
		if raw == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}
		if id := c.Param("session_id"); id != "" && id != claims.SessionID {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims returns the claims stored by RequireSessionToken, or nil.
func GetClaims(c *gin.Context) *service.Claims {
	claims, _ := c.Value(ContextKeyClaims).(*service.Claims)
	return claims
}

func sessionToken(r *http.Request) string {
	if tok := bearer(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	if tok := subprotocolToken(r.Header.Values("Sec-WebSocket-Protocol")); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

func bearer(header string) string {
	scheme, tok, ok := strings.Cut(header, " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(tok)
	}
	return ""
}

func subprotocolToken(headers []string) string {
	var protocols []string
	for _, h := range headers {
		for _, p := range strings.Split(h, ",") {
			protocols = append(protocols, strings.TrimSpace(p))
		}
	}
	for i, p := range protocols {
		if p == TokenSubprotocol && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}
