package server

import (
	"context"
	"net/http"
	"strings"

	"storeadmin/internal/auth"
)

type ctxKey string

const claimsContextKey ctxKey = "claims"

const loginPath = "/login"

// protectedSections are back-office page trees that need a session. "/" is
// protected on its own, not as a prefix.
var protectedSections = []string{"/team", "/products", "/analytics"}

func isProtectedPath(path string) bool {
	if path == "/" {
		return true
	}
	for _, section := range protectedSections {
		if path == section || strings.HasPrefix(path, section+"/") {
			return true
		}
	}
	return false
}

// routeGuard keeps signed-out visitors on /login and signed-in ones off it.
// Any token that fails verification counts as no token.
func (s *Server) routeGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		protected := isProtectedPath(path)
		if !protected && path != loginPath {
			next.ServeHTTP(w, r)
			return
		}

		_, err := s.Sessions.Parse(auth.SessionToken(r))
		signedIn := err == nil

		switch {
		case protected && !signedIn:
			http.Redirect(w, r, loginPath, http.StatusTemporaryRedirect)
		case path == loginPath && signedIn:
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.Sessions.Parse(auth.SessionToken(r))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	if val, ok := ctx.Value(claimsContextKey).(*auth.Claims); ok {
		return val
	}
	return nil
}
