package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/asavelyev/mediahub/internal/apperr"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// requireAuth resolves the access token from the Authorization header or
// the accessToken cookie and stores the verified user ID in the request
// context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(accessTokenCookie); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			s.writeError(w, r, apperr.Unauthorized("unauthorized request"))
			return
		}

		userID, err := s.issuer.VerifyAccessToken(token)
		if err != nil {
			s.writeError(w, r, apperr.Unauthorized("invalid access token"))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	token, found := strings.CutPrefix(h, "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
