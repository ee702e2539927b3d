package handlers

import (
	"net/http"
	"strings"

	"kiama-backend/internal/auth"
)

type checkAuthRequest struct {
	ServerPassword string `json:"serverPassword"`
}

// CheckAuth lets a client validate its credentials before opening the
// websocket: same checks, same order, without the upgrade.
func CheckAuth(w http.ResponseWriter, r *http.Request) {
	var body checkAuthRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			respondError(w, err)
			return
		}
	}

	if err := auth.CheckServerPassword(body.ServerPassword); err != nil {
		http.Error(w, "Wrong server password", http.StatusUnauthorized)
		return
	}

	tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	userToken, err := auth.VerifyToken(tokenString)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "Couldn't verify token", http.StatusUnauthorized)
		return
	}

	respondJson(w, map[string]any{
		"username":          userToken.Username,
		"passwordProtected": auth.HasServerPassword(),
	})
}
