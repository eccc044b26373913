package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-school-library/internal/library"
)

// Identity is established upstream (gateway or session layer) and forwarded in headers.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
)

type principalKey struct{}

// requirePrincipal rejects requests without a usable identity with 401.
func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: "missing " + HeaderUserID})
			return
		}
		role := library.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
		switch role {
		case "":
			role = library.RoleMember
		case library.RoleAdmin, library.RoleMember:
		default:
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "UNAUTHENTICATED", Message: "unknown role " + string(role)})
			return
		}
		p := library.Principal{ID: id, Role: role}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principal(r *http.Request) library.Principal {
	p, _ := r.Context().Value(principalKey{}).(library.Principal)
	return p
}
