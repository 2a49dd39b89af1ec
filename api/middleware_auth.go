package api

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/routecodex/routecodex/config"
)

// RequireJWT wraps a handler with bearer-token auth against a signed
// JWT instead of RequireGatewayKey's literal secret compare, grounded
// on the teacher's cmd/agentflow/middleware.JWTAuth (HS256 keyfunc,
// issuer/audience parser options). RouteCodex has no per-tenant quota
// concept (spec's multi-tenant Non-goal), so unlike the teacher this
// only authenticates the request; it injects no claims into context.
func RequireJWT(cfg config.JWTConfig, next http.Handler) http.Handler {
	if !cfg.Enabled {
		return next
	}
	secret := []byte(cfg.Secret)
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(token *jwt.Token) (any, error) {
		return secret, nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r.Header.Get("Authorization"))
		if tokenStr == "" {
			WriteProtocolError(w, detectForError(r), unauthorizedError())
			return
		}
		token, err := jwt.Parse(tokenStr, keyFunc, parserOpts...)
		if err != nil || !token.Valid {
			WriteProtocolError(w, detectForError(r), unauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}
