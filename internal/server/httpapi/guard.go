package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

const sessionHeader = common.SessionTokenHeaderName

// requireRole admits requests carrying a valid bearer token whose role is in
// allowed (any role when allowed is empty) and stores the claims in the
// request context. With RequireLiveSession the X-Session-Token header must
// also name a live session of the same user.
func (s *Server) requireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.codec.Authorize(r.Header.Get("Authorization"), allowed...)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			if s.liveSession {
				if err := s.auth.CheckSession(r.Context(), claims.UserID, r.Header.Get(sessionHeader)); err != nil {
					s.writeServiceError(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// mustClaims returns the claims stored by requireRole.
func mustClaims(r *http.Request) *auth.Claims {
	c, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		panic("httpapi: handler mounted without requireRole")
	}
	return c
}
