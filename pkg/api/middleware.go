package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/wardenhq/warden/pkg/errs"
	"github.com/wardenhq/warden/pkg/persona"
)

// PrincipalResolver verifies a bearer token and returns the matching user.
// Satisfied by persona.PrincipalResolver.
type PrincipalResolver interface {
	Resolve(ctx context.Context, rawToken string) (*persona.User, error)
}

type contextKey int

const personaKey contextKey = iota

// PersonaFromContext returns the acting persona attached by the principal
// middleware.
func PersonaFromContext(ctx context.Context) (persona.Persona, bool) {
	p, ok := ctx.Value(personaKey).(persona.Persona)
	return p, ok
}

// personaHeader lets an authenticated user act as an organization they
// belong to. The middleware rejects the switch unless the user is a member
// or the owner of the named organization.
const personaHeader = "Warden-Persona"

func (s *Server) principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, errs.Forbidden("missing bearer token"))
			return
		}

		user, err := s.resolver.Resolve(r.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, err)
			return
		}

		var acting persona.Persona = user
		if orgID := r.Header.Get(personaHeader); orgID != "" {
			org, err := s.service.Store().Get(r.Context(), orgID)
			if err != nil {
				writeError(w, err)
				return
			}

			allowed := org.OwnerID == user.ID
			if !allowed {
				allowed, err = s.service.Members().IsMember(r.Context(), org.ID, user.ID)
				if err != nil {
					writeError(w, err)
					return
				}
			}
			if !allowed {
				writeError(w, errs.Forbidden("not a member of organization %s", org.ID))
				return
			}
			acting = org
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), personaKey, acting)))
	})
}
