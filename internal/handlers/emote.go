package handlers

import (
	"net/http"

	"kiama-backend/internal/emotes"
	"kiama-backend/internal/models"
)

func GetEmotes(w http.ResponseWriter, r *http.Request) {
	respondJson(w, emotes.List())
}

func UploadEmote(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageServer }) {
		return
	}

	emote, err := emotes.HandleUpload(r)
	if err != nil {
		respondError(w, err)
		return
	}

	sugar.Infof("User [%s] registered emote [%s]", principalOf(r), emote.Name)
	respondJson(w, emote)
}
