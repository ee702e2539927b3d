package directory

import (
	"time"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/models"
)

func copyMessage(msg models.Message) models.Message {
	c := msg
	if msg.Payload != nil {
		c.Payload = make(map[string]any, len(msg.Payload))
		for k, v := range msg.Payload {
			c.Payload[k] = v
		}
	}
	return c
}

// AppendMessage appends to the channel log and updates the channel's
// metrics exactly once. The notify callback, when non-nil, runs while the
// store lock is still held, which is what makes append order and broadcast
// order agree for concurrent senders on the same channel.
func (s *Store) AppendMessage(msg models.Message, notify func(models.Message)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.channels[msg.ChannelID]; !exists {
		return apperrors.NotFound("channel not found")
	}

	s.messages[msg.ChannelID] = append(s.messages[msg.ChannelID], copyMessage(msg))

	m := s.metrics[msg.ChannelID]
	m.messageCount++
	m.lastActiveAt = msg.ServerTimestamp
	m.senders[msg.Author] = struct{}{}

	if notify != nil {
		notify(copyMessage(msg))
	}
	return nil
}

// History returns the most recent bounded window of the channel log, oldest
// first. A channel with no messages yields an empty list, not an error.
func (s *Store) History(channelID int64, limit int) ([]models.Message, error) {
	return s.HistorySnapshot(channelID, limit, nil)
}

// HistorySnapshot is History plus an attach callback run under the same
// lock that appends notify under. A session subscribing inside attach sees
// each message exactly once: in the returned window or through the room it
// joined, never both.
func (s *Store) HistorySnapshot(channelID int64, limit int, attach func()) ([]models.Message, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	log, exists := s.messages[channelID]
	if !exists {
		return nil, apperrors.NotFound("channel not found")
	}

	if attach != nil {
		attach()
	}

	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}

	window := make([]models.Message, 0, limit)
	for _, msg := range log[len(log)-limit:] {
		window = append(window, copyMessage(msg))
	}
	return window, nil
}

// MessagePatch is the only way an appended message changes. Id, author and
// channel are not patchable.
type MessagePatch struct {
	Content *string        `json:"content"`
	Type    *string        `json:"type"`
	Payload map[string]any `json:"payload"`
}

// ModifyMessage locates a message by id across all channels, applies the
// patch and returns the updated copy so the caller can emit message-update.
func (s *Store) ModifyMessage(messageID int64, patch MessagePatch) (models.Message, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for channelID, log := range s.messages {
		for i := range log {
			if log[i].ID != messageID {
				continue
			}

			if patch.Content != nil {
				log[i].Content = *patch.Content
			}
			if patch.Type != nil {
				log[i].Type = *patch.Type
			}
			if patch.Payload != nil {
				log[i].Payload = patch.Payload
			}

			s.sugar.Infof("Message ID [%d] in channel ID [%d] was modified", messageID, channelID)
			return copyMessage(log[i]), nil
		}
	}

	return models.Message{}, apperrors.NotFound("message not found")
}

// RecordMedia bumps the media counters for an accepted upload.
func (s *Store) RecordMedia(channelID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m, exists := s.metrics[channelID]
	if !exists {
		return apperrors.NotFound("channel not found")
	}

	m.mediaCount++
	m.lastActiveAt = time.Now().UTC()
	return nil
}

func (s *Store) Metrics(channelID int64) (models.ChannelMetrics, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	m, exists := s.metrics[channelID]
	if !exists {
		return models.ChannelMetrics{}, apperrors.NotFound("channel not found")
	}

	return models.ChannelMetrics{
		MessageCount:  m.messageCount,
		MediaCount:    m.mediaCount,
		LastActiveAt:  m.lastActiveAt,
		UniqueSenders: len(m.senders),
	}, nil
}
