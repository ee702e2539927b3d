// Package pipeline runs every inbound message through the accept path:
// permission check, slow mode, server-side stamping, emote substitution,
// plugin handlers, then the atomic append+broadcast in the directory.
package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/directory"
	"kiama-backend/internal/emotes"
	"kiama-backend/internal/keyValue"
	"kiama-backend/internal/models"
	"kiama-backend/internal/plugin"
	"kiama-backend/internal/snowflake"
)

// HandlerTimeout bounds a single plugin handler. A handler that overruns is
// skipped and the message continues with its last good state.
var HandlerTimeout = 2 * time.Second

type Pipeline struct {
	sugar   *zap.SugaredLogger
	store   *directory.Store
	plugins *plugin.Manager

	// broadcast delivers an accepted message to channel subscribers. It is
	// called from inside the directory's append, under the store lock, so
	// broadcast order equals append order.
	broadcast func(msg models.Message)

	// broadcastUpdate announces an in-place message modification.
	broadcastUpdate func(msg models.Message)
}

func New(sugar *zap.SugaredLogger, store *directory.Store, plugins *plugin.Manager, broadcast func(msg models.Message), broadcastUpdate func(msg models.Message)) *Pipeline {
	return &Pipeline{
		sugar:           sugar,
		store:           store,
		plugins:         plugins,
		broadcast:       broadcast,
		broadcastUpdate: broadcastUpdate,
	}
}

// Submit accepts a message from an authenticated user. On success the
// returned message is the one that was appended and broadcast, with its
// server-assigned id and timestamp.
func (p *Pipeline) Submit(principal string, channelID int64, content string, msgType string, payload map[string]any) (models.Message, error) {
	channel, err := p.store.Channel(channelID)
	if err != nil {
		return models.Message{}, err
	}

	allowed, err := p.store.CanAccess(channelID, principal, directory.ActionWrite)
	if err != nil {
		return models.Message{}, err
	}
	if !allowed {
		return models.Message{}, apperrors.Forbidden("no write access to this channel")
	}

	if err := p.checkSlowMode(channel, principal); err != nil {
		return models.Message{}, err
	}

	id, err := snowflake.Generate()
	if err != nil {
		return models.Message{}, err
	}

	if msgType == "" {
		msgType = "text"
	}
	if msgType == "text" {
		content = emotes.Parse(content)
	}

	msg := models.Message{
		ID:              id,
		ChannelID:       channelID,
		Author:          principal,
		Content:         content,
		Type:            msgType,
		ServerTimestamp: time.Now().UTC(),
		Payload:         payload,
	}

	msg = p.runHandlers(msg)

	if err := p.store.AppendMessage(msg, p.broadcast); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (p *Pipeline) checkSlowMode(channel models.Channel, principal string) error {
	seconds := channel.Settings.SlowModeSeconds
	if seconds <= 0 {
		return nil
	}

	interval := time.Duration(seconds) * time.Second

	key := fmt.Sprintf("slowmode:%d:%s", channel.ID, principal)
	held, err := keyValue.Get(key)
	if err != nil {
		return err
	}
	if held != "" {
		// the key holds the unix time the gate opens again
		remaining := interval
		if opensAt, err := strconv.ParseInt(held, 10, 64); err == nil {
			remaining = time.Until(time.Unix(opensAt, 0))
		}
		if remaining < time.Second {
			remaining = time.Second
		}
		return apperrors.Forbidden(fmt.Sprintf("slow mode: wait %d more seconds", int64(remaining.Round(time.Second)/time.Second)))
	}

	opensAt := time.Now().Add(interval).Unix()
	return keyValue.Set(key, strconv.FormatInt(opensAt, 10), interval)
}

// runHandlers feeds the message through every enabled plugin handler in
// registration order. Id, author and channel survive whatever a handler
// returns. A panicking or overrunning handler is skipped.
func (p *Pipeline) runHandlers(msg models.Message) models.Message {
	for _, entry := range p.plugins.Handlers() {
		if !p.plugins.IsEnabled(entry.PluginName) {
			continue
		}

		result, ok := p.callHandler(entry, msg)
		if !ok {
			continue
		}

		result.ID = msg.ID
		result.Author = msg.Author
		result.ChannelID = msg.ChannelID
		msg = result
	}
	return msg
}

func (p *Pipeline) callHandler(entry plugin.HandlerEntry, msg models.Message) (result models.Message, ok bool) {
	done := make(chan models.Message, 1)
	failed := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.sugar.Errorf("Plugin [%s] message handler panicked: %v", entry.PluginName, r)
				close(failed)
			}
		}()
		done <- entry.Fn(msg)
	}()

	select {
	case result = <-done:
		return result, true
	case <-failed:
		return models.Message{}, false
	case <-time.After(HandlerTimeout):
		p.sugar.Errorf("Plugin [%s] message handler exceeded %s, skipping", entry.PluginName, HandlerTimeout)
		return models.Message{}, false
	}
}

// SendFromPlugin is the host side of the sendMessages capability. Plugin
// messages skip the user permission check but still get server stamping and
// the atomic append+broadcast.
func (p *Pipeline) SendFromPlugin(pluginName string, msg models.Message) error {
	if !p.plugins.IsEnabled(pluginName) {
		return apperrors.Forbidden("plugin is disabled")
	}

	id, err := snowflake.Generate()
	if err != nil {
		return err
	}

	msg.ID = id
	msg.Author = "plugin:" + pluginName
	msg.ServerTimestamp = time.Now().UTC()
	if msg.Type == "" {
		msg.Type = "text"
	}

	return p.store.AppendMessage(msg, p.broadcast)
}

// ModifyFromPlugin is the host side of the modifyMessages capability. The
// patch can't touch id, author or channel. An update event goes out on
// success.
func (p *Pipeline) ModifyFromPlugin(pluginName string, messageID int64, patch plugin.MessagePatch) error {
	if !p.plugins.IsEnabled(pluginName) {
		return apperrors.Forbidden("plugin is disabled")
	}

	updated, err := p.store.ModifyMessage(messageID, directory.MessagePatch{
		Content: patch.Content,
		Type:    patch.Type,
		Payload: patch.Payload,
	})
	if err != nil {
		return err
	}

	p.sugar.Infof("Plugin [%s] modified message ID [%d]", pluginName, messageID)
	if p.broadcastUpdate != nil {
		p.broadcastUpdate(updated)
	}
	return nil
}
