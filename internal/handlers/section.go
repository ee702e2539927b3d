package handlers

import (
	"net/http"

	"kiama-backend/internal/hub"
	"kiama-backend/internal/models"
)

func GetSections(w http.ResponseWriter, r *http.Request) {
	respondJson(w, store.Sections())
}

type createSectionRequest struct {
	Name string `json:"name" validate:"required"`
}

func CreateSection(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageChannels }) {
		return
	}

	var body createSectionRequest
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	section, err := store.CreateSection(body.Name)
	if err != nil {
		respondError(w, err)
		return
	}

	hub.BroadcastServerEvent(hub.EventSectionCreated, section)
	respondJson(w, section)
}

// DeleteSection never cascades; the section's channels survive unsectioned.
func DeleteSection(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageChannels }) {
		return
	}

	sectionID, err := urlParamID(r, "sectionID")
	if err != nil {
		respondError(w, err)
		return
	}

	if err := store.DeleteSection(sectionID); err != nil {
		respondError(w, err)
		return
	}

	hub.BroadcastServerEvent(hub.EventSectionDeleted, map[string]any{"id": sectionID})
	w.WriteHeader(http.StatusNoContent)
}
