// Package hub is the session gateway: it authenticates websocket upgrades,
// tracks connected clients and fans channel events out through a local
// pub/sub keyed by channel ID.
package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/auth"
	"kiama-backend/internal/directory"
	"kiama-backend/internal/models"
	"kiama-backend/internal/pipeline"
	"kiama-backend/internal/snowflake"
)

const sendBufferSize = 64

type Client struct {
	SessionID int64
	UserID    int64
	Username  string
	Conn      *websocket.Conn

	send chan []byte
	once sync.Once
}

// deliver queues a frame for the writer goroutine. A client that can't keep
// up loses frames instead of stalling every other subscriber.
func (c *Client) deliver(message []byte) {
	select {
	case c.send <- message:
	default:
		sugar.Warnf("Session ID [%d] send buffer full, dropping frame", c.SessionID)
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

var clients = make(map[int64]*Client)
var clientsMutex sync.Mutex

var sugar *zap.SugaredLogger
var store *directory.Store
var pipe *pipeline.Pipeline
var pubsub LocalPubSub

func Setup(_sugar *zap.SugaredLogger, _store *directory.Store, _pipe *pipeline.Pipeline) {
	sugar = _sugar
	store = _store
	pipe = _pipe
	pubsub.Setup()
}

// HandleClient authenticates and upgrades a websocket session. The token and
// the optional server password arrive as query parameters and are verified
// before the upgrade; a failed handshake never reaches websocket framing.
func HandleClient(w http.ResponseWriter, r *http.Request) {
	if err := auth.CheckServerPassword(r.URL.Query().Get("serverPassword")); err != nil {
		sugar.Debug("Websocket handshake rejected: wrong server password")
		http.Error(w, "Wrong server password", http.StatusUnauthorized)
		return
	}

	token, err := auth.VerifyToken(r.URL.Query().Get("token"))
	if err != nil {
		sugar.Debugf("Websocket handshake rejected: %v", err)
		http.Error(w, "Invalid or missing token", http.StatusUnauthorized)
		return
	}

	sessionID, err := snowflake.Generate()
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	var upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sugar.Error(err)
		return
	}
	defer conn.Close()

	client := &Client{
		SessionID: sessionID,
		UserID:    token.UserID,
		Username:  token.Username,
		Conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}

	setClient(sessionID, client)
	sugar.Infof("User [%s] connected as session ID [%d]", client.Username, sessionID)

	go func() {
		for message := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				sugar.Debug(err)
				return
			}
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			sugar.Debug(err)
			break
		}
		handleFrame(client, frame)
	}

	pubsub.UnsubscribeFromAll(sessionID)
	deleteClient(sessionID)
	client.close()
	sugar.Infof("Session ID [%d] disconnected", sessionID)
}

func handleFrame(client *Client, frame []byte) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		sendError(client, apperrors.InvalidArg("malformed frame"))
		return
	}

	var err error
	switch envelope.Event {
	case EventJoinChannel:
		err = handleJoinChannel(client, envelope.Data)
	case EventLeaveChannel:
		err = handleLeaveChannel(client, envelope.Data)
	case EventMessage:
		err = handleMessage(client, envelope.Data)
	case EventGetChannels:
		err = handleGetChannels(client)
	default:
		err = apperrors.InvalidArg(fmt.Sprintf("unknown event [%s]", envelope.Event))
	}

	if err != nil {
		sendError(client, err)
	}
}

// handleJoinChannel checks read access, subscribes the session to the
// channel's room and replies with the recent history window.
func handleJoinChannel(client *Client, data json.RawMessage) error {
	var join joinChannelData
	if err := json.Unmarshal(data, &join); err != nil {
		return apperrors.InvalidArg("malformed join_channel data")
	}

	allowed, err := store.CanAccess(join.ChannelID, client.Username, directory.ActionRead)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.Forbidden("no read access to this channel")
	}

	// subscribing while the snapshot is taken keeps a concurrent append
	// from reaching this session twice, as history and as a broadcast
	history, err := store.HistorySnapshot(join.ChannelID, directory.HistoryWindow, func() {
		pubsub.Subscribe(fmt.Sprint(join.ChannelID), client.SessionID)
	})
	if err != nil {
		return err
	}
	return sendEvent(client, EventChannelHistory, channelHistoryData{
		ChannelID: join.ChannelID,
		Messages:  history,
	})
}

func handleLeaveChannel(client *Client, data json.RawMessage) error {
	var leave joinChannelData
	if err := json.Unmarshal(data, &leave); err != nil {
		return apperrors.InvalidArg("malformed leave_channel data")
	}

	pubsub.Unsubscribe(fmt.Sprint(leave.ChannelID), client.SessionID)
	return nil
}

func handleMessage(client *Client, data json.RawMessage) error {
	var msg messageData
	if err := json.Unmarshal(data, &msg); err != nil {
		return apperrors.InvalidArg("malformed message data")
	}

	// the pipeline broadcasts on success, nothing to send here
	_, err := pipe.Submit(client.Username, msg.ChannelID, msg.Content, msg.Type, msg.Payload)
	return err
}

func handleGetChannels(client *Client) error {
	return sendEvent(client, EventChannelsList, channelsListData{
		Channels: store.Channels(),
		Sections: store.Sections(),
	})
}

func sendEvent(client *Client, event string, data any) error {
	message, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	client.deliver(message)
	return nil
}

func sendError(client *Client, err error) {
	_ = sendEvent(client, EventError, errorData{
		Code:    string(apperrors.CodeOf(err)),
		Message: err.Error(),
	})
}

func setClient(sessionID int64, client *Client) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	clients[sessionID] = client
}

func deleteClient(sessionID int64) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	delete(clients, sessionID)
}

func GetClient(sessionID int64) (*Client, bool) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	client, exists := clients[sessionID]
	return client, exists
}

// ActiveConnections reports the number of live sessions, for metrics.
func ActiveConnections() int {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()

	return len(clients)
}

// BroadcastMessage fans an accepted message out to the channel's room. The
// pipeline calls this from inside the directory append, so room delivery
// order matches the channel log.
func BroadcastMessage(msg models.Message) {
	message, err := encodeEvent(EventMessage, msg)
	if err != nil {
		sugar.Error(err)
		return
	}
	pubsub.Publish(fmt.Sprint(msg.ChannelID), message)
}

// BroadcastMessageUpdate announces an in-place modification to the room.
func BroadcastMessageUpdate(msg models.Message) {
	message, err := encodeEvent(EventMessageUpdate, msg)
	if err != nil {
		sugar.Error(err)
		return
	}
	pubsub.Publish(fmt.Sprint(msg.ChannelID), message)
}

// BroadcastServerEvent notifies every connected session, for directory
// changes like channel_created or section_deleted.
func BroadcastServerEvent(event string, data any) {
	message, err := encodeEvent(event, data)
	if err != nil {
		sugar.Error(err)
		return
	}

	clientsMutex.Lock()
	list := make([]*Client, 0, len(clients))
	for _, client := range clients {
		list = append(list, client)
	}
	clientsMutex.Unlock()

	for _, client := range list {
		client.deliver(message)
	}
}
