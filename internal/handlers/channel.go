package handlers

import (
	"net/http"

	"kiama-backend/internal/directory"
	"kiama-backend/internal/hub"
	"kiama-backend/internal/media"
	"kiama-backend/internal/models"
)

func GetChannels(w http.ResponseWriter, r *http.Request) {
	respondJson(w, store.Channels())
}

type createChannelRequest struct {
	Name      string                 `json:"name" validate:"required"`
	Kind      models.ChannelKind     `json:"kind"`
	SectionID int64                  `json:"sectionID,string"`
	Settings  models.ChannelSettings `json:"settings"`
}

func CreateChannel(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageChannels }) {
		return
	}

	var body createChannelRequest
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	channel, err := store.CreateChannel(body.Name, body.Kind, body.SectionID, body.Settings)
	if err != nil {
		respondError(w, err)
		return
	}

	hub.BroadcastServerEvent(hub.EventChannelCreated, channel)
	respondJson(w, channel)
}

func DeleteChannel(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageChannels }) {
		return
	}

	channelID, err := urlParamID(r, "channelID")
	if err != nil {
		respondError(w, err)
		return
	}

	if err := store.DeleteChannel(channelID); err != nil {
		respondError(w, err)
		return
	}
	if err := media.DeleteChannel(channelID); err != nil {
		sugar.Error(err)
	}

	hub.BroadcastServerEvent(hub.EventChannelDeleted, map[string]any{"id": channelID})
	w.WriteHeader(http.StatusNoContent)
}

func PatchChannelPermissions(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageChannels }) {
		return
	}

	channelID, err := urlParamID(r, "channelID")
	if err != nil {
		respondError(w, err)
		return
	}

	var patch directory.ChannelPermissionsPatch
	if err := decodeBody(r, &patch); err != nil {
		respondError(w, err)
		return
	}

	channel, err := store.PatchChannelPermissions(channelID, patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, channel)
}

func PatchChannelSettings(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageChannels }) {
		return
	}

	channelID, err := urlParamID(r, "channelID")
	if err != nil {
		respondError(w, err)
		return
	}

	var settings models.ChannelSettings
	if err := decodeBody(r, &settings); err != nil {
		respondError(w, err)
		return
	}

	channel, err := store.PatchChannelSettings(channelID, settings)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, channel)
}

func GetChannelMetrics(w http.ResponseWriter, r *http.Request) {
	channelID, err := urlParamID(r, "channelID")
	if err != nil {
		respondError(w, err)
		return
	}

	metrics, err := store.Metrics(channelID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, metrics)
}

func GetChannelMedia(w http.ResponseWriter, r *http.Request) {
	channelID, err := urlParamID(r, "channelID")
	if err != nil {
		respondError(w, err)
		return
	}

	allowed, err := store.CanAccess(channelID, principalOf(r), directory.ActionRead)
	if err != nil {
		respondError(w, err)
		return
	}
	if !allowed {
		http.Error(w, "No read access to this channel", http.StatusForbidden)
		return
	}

	entries, err := media.ListChannel(channelID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, entries)
}

// UploadChannelMedia needs write access since an upload is channel content.
func UploadChannelMedia(w http.ResponseWriter, r *http.Request) {
	channelID, err := urlParamID(r, "channelID")
	if err != nil {
		respondError(w, err)
		return
	}

	principal := principalOf(r)
	allowed, err := store.CanAccess(channelID, principal, directory.ActionWrite)
	if err != nil {
		respondError(w, err)
		return
	}
	if !allowed {
		http.Error(w, "No write access to this channel", http.StatusForbidden)
		return
	}

	entry, err := media.HandleUpload(r, channelID, principal)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := store.RecordMedia(channelID); err != nil {
		sugar.Error(err)
	}

	respondJson(w, entry)
}
