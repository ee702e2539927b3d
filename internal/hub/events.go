package hub

import (
	"encoding/json"

	"kiama-backend/internal/models"
)

// Client-sent event names.
const (
	EventJoinChannel  = "join_channel"
	EventLeaveChannel = "leave_channel"
	EventMessage      = "message"
	EventGetChannels  = "get_channels"
)

// Server-sent event names.
const (
	EventChannelHistory = "channel_history"
	EventChannelsList   = "channels_list"
	EventMessageUpdate  = "message-update"
	EventChannelCreated = "channel_created"
	EventChannelDeleted = "channel_deleted"
	EventSectionCreated = "section_created"
	EventSectionDeleted = "section_deleted"
	EventError          = "error"
)

// Envelope is the wire shape of every websocket frame, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinChannelData struct {
	ChannelID int64 `json:"channelId,string"`
}

type messageData struct {
	ChannelID int64          `json:"channelId,string"`
	Content   string         `json:"content"`
	Type      string         `json:"type,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type channelHistoryData struct {
	ChannelID int64            `json:"channelId,string"`
	Messages  []models.Message `json:"messages"`
}

type channelsListData struct {
	Channels []models.Channel `json:"channels"`
	Sections []models.Section `json:"sections"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: dataBytes})
}
