package builtin

import (
	"sync/atomic"

	"kiama-backend/internal/models"
	"kiama-backend/internal/plugin"
)

// MessageLoggerPlugin streams every message passing the pipeline to the
// server logs, mostly useful while debugging a deployment.
type MessageLoggerPlugin struct {
	counter atomic.Int64
}

func NewMessageLoggerPlugin() *MessageLoggerPlugin {
	return &MessageLoggerPlugin{}
}

func (p *MessageLoggerPlugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:        "message-logger",
		Version:     "1.0.0",
		Description: "Logs all messages for debugging",
		Permissions: []plugin.Permission{plugin.PermMessageHandler},
	}
}

func (p *MessageLoggerPlugin) Init(api *plugin.API) error {
	sugar := api.Log()

	registrar, granted := api.MessageHandlers()
	if !granted {
		sugar.Warn("messageHandler permission not granted, nothing to do")
		return nil
	}

	registrar.AddMessageHandler(func(msg models.Message) models.Message {
		p.counter.Add(1)
		sugar.Debugf("[%s] %s: %s (channel %d)", msg.ServerTimestamp.Format("15:04:05"), msg.Author, msg.Content, msg.ChannelID)
		return msg
	})

	sugar.Info("Message logger plugin initialized")
	return nil
}

// Count reports how many messages passed through, for tests and metrics.
func (p *MessageLoggerPlugin) Count() int64 {
	return p.counter.Load()
}

func (p *MessageLoggerPlugin) Cleanup() {}
