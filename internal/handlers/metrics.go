package handlers

import (
	"net/http"
	"time"

	"kiama-backend/internal/hub"
)

func GetServerMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := store.ServerMetrics()
	respondJson(w, map[string]any{
		"uptimeSeconds":     int64(time.Since(startedAt).Seconds()),
		"channelCount":      metrics.ChannelCount,
		"sectionCount":      metrics.SectionCount,
		"roleCount":         metrics.RoleCount,
		"messageCount":      metrics.MessageCount,
		"mediaCount":        metrics.MediaCount,
		"activeConnections": hub.ActiveConnections(),
	})
}
