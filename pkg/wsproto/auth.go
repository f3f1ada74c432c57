package wsproto

import (
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// SessionOpt configures a Session before it dials, mirroring the
// functional-options shape of tzrikka-timpani/pkg/websocket/dial.go's
// DialOpt.
type SessionOpt func(*SessionConfig)

// WithJWTBearer attaches a pre-built JWT as an Authorization: Bearer
// header on the upgrade request, a common auth pattern for WebSocket
// gateways that the distilled spec does not mention (the original
// Python project predates JWT-gated WS gateways).
func WithJWTBearer(token string) SessionOpt {
	return func(c *SessionConfig) {
		if c.Headers == nil {
			c.Headers = http.Header{}
		}
		c.Headers.Set("Authorization", "Bearer "+token)
	}
}

// WithSignedJWTBearer signs claims with method and key, following the
// same jwt.NewWithClaims/SignedString shape as
// tzrikka-timpani/pkg/api/github/api.go's generateJWT, and attaches the
// result the same way as WithJWTBearer. Returning a SessionOpt that
// itself returns an error would break the functional-options signature,
// so a signing failure is deferred: it surfaces as a ConnectFail event
// when Session.Run attempts to use the malformed option.
func WithSignedJWTBearer(claims jwt.Claims, method jwt.SigningMethod, key any) SessionOpt {
	return func(c *SessionConfig) {
		token := jwt.NewWithClaims(method, claims)
		signed, err := token.SignedString(key)
		if err != nil {
			c.authErr = fmt.Errorf("failed to sign JWT bearer token: %w", err)
			return
		}
		if c.Headers == nil {
			c.Headers = http.Header{}
		}
		c.Headers.Set("Authorization", "Bearer "+signed)
	}
}
