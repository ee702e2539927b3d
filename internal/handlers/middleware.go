package handlers

import (
	"context"
	"net/http"
	"strings"

	"kiama-backend/internal/auth"
	"kiama-backend/internal/models"
)

type principalKeyType struct{}

// UserVerifier authenticates the bearer token and passes the principal on.
// A configured server password is checked first, same as the websocket
// handshake.
func UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.CheckServerPassword(r.Header.Get("X-Server-Password")); err != nil {
			http.Error(w, "Wrong server password", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			http.Error(w, "No token was provided", http.StatusUnauthorized)
			return
		}

		userToken, err := auth.VerifyToken(tokenString)
		if err != nil {
			sugar.Debug(err)
			http.Error(w, "Couldn't verify token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalKeyType{}, userToken.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalOf(r *http.Request) string {
	principal, _ := r.Context().Value(principalKeyType{}).(string)
	return principal
}

// requireCapability gates admin operations on a role capability of the
// caller. It writes the refusal itself and reports whether to continue.
func requireCapability(w http.ResponseWriter, r *http.Request, check func(models.RolePermissions) bool) bool {
	principal := principalOf(r)
	if !store.HasCapability(principal, check) {
		sugar.Warnf("User [%s] was refused an admin operation on [%s]", principal, r.URL.Path)
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return false
	}
	return true
}
