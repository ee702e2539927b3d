package directory

import (
	"sort"
	"time"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/models"
	"kiama-backend/internal/snowflake"
	"kiama-backend/internal/validator"
)

func copyChannel(channel *models.Channel) models.Channel {
	c := *channel
	c.Permissions.Roles = append([]int64(nil), channel.Permissions.Roles...)
	c.Permissions.ReadRoles = append([]int64(nil), channel.Permissions.ReadRoles...)
	c.Permissions.WriteRoles = append([]int64(nil), channel.Permissions.WriteRoles...)
	return c
}

func (s *Store) Channel(channelID int64) (models.Channel, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	channel, exists := s.channels[channelID]
	if !exists {
		return models.Channel{}, apperrors.NotFound("channel not found")
	}
	return copyChannel(channel), nil
}

func (s *Store) Channels() []models.Channel {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	channels := make([]models.Channel, 0, len(s.channels))
	for _, channel := range s.channels {
		channels = append(channels, copyChannel(channel))
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].Position != channels[j].Position {
			return channels[i].Position < channels[j].Position
		}
		return channels[i].ID < channels[j].ID
	})
	return channels
}

func (s *Store) CreateChannel(name string, kind models.ChannelKind, sectionID int64, settings models.ChannelSettings) (models.Channel, error) {
	if err := validator.Name(name); err != nil {
		return models.Channel{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid channel name", err)
	}

	switch kind {
	case models.ChannelText, models.ChannelVoice, models.ChannelAnnouncement:
	case "":
		kind = models.ChannelText
	default:
		return models.Channel{}, apperrors.InvalidArg("unknown channel kind")
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		return models.Channel{}, apperrors.Wrap(apperrors.CodeInternal, "couldn't generate channel ID", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if sectionID != 0 {
		if _, exists := s.sections[sectionID]; !exists {
			return models.Channel{}, apperrors.NotFound("section not found")
		}
	}

	now := time.Now().UTC()
	channel := &models.Channel{
		ID:          channelID,
		Name:        name,
		Kind:        kind,
		SectionID:   sectionID,
		Position:    s.nextChannelPosition(sectionID),
		Permissions: models.ChannelPermissions{Read: true, Write: true, Manage: false},
		Settings:    settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.channels[channelID] = channel
	s.messages[channelID] = []models.Message{}
	s.metrics[channelID] = newMetricsState()

	s.sugar.Infof("Created channel [%s] with ID [%d]", name, channelID)
	return copyChannel(channel), nil
}

// DeleteChannel purges the channel's message log and metrics with it. The
// default general channel is protected.
func (s *Store) DeleteChannel(channelID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.channels[channelID]; !exists {
		return apperrors.NotFound("channel not found")
	}
	if channelID == s.defaultChannelID {
		return apperrors.Protected("cannot delete default channel")
	}

	delete(s.channels, channelID)
	delete(s.messages, channelID)
	delete(s.metrics, channelID)

	s.sugar.Infof("Deleted channel ID [%d]", channelID)
	return nil
}

// ChannelPermissionsPatch updates only the fields that are non-nil, so a
// readRoles/writeRoles patch leaves the booleans untouched and vice versa.
type ChannelPermissionsPatch struct {
	Read       *bool    `json:"read"`
	Write      *bool    `json:"write"`
	Manage     *bool    `json:"manage"`
	Roles      *[]int64 `json:"roles"`
	ReadRoles  *[]int64 `json:"readRoles"`
	WriteRoles *[]int64 `json:"writeRoles"`
}

func (s *Store) PatchChannelPermissions(channelID int64, patch ChannelPermissionsPatch) (models.Channel, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	channel, exists := s.channels[channelID]
	if !exists {
		return models.Channel{}, apperrors.NotFound("channel not found")
	}

	if patch.Roles != nil || patch.ReadRoles != nil || patch.WriteRoles != nil {
		roleLists := []*[]int64{patch.Roles, patch.ReadRoles, patch.WriteRoles}
		for _, list := range roleLists {
			if list == nil {
				continue
			}
			for _, roleID := range *list {
				if _, ok := s.roles[roleID]; !ok {
					return models.Channel{}, apperrors.NotFound("unknown role in permission patch")
				}
			}
		}
	}

	if patch.Read != nil {
		channel.Permissions.Read = *patch.Read
	}
	if patch.Write != nil {
		channel.Permissions.Write = *patch.Write
	}
	if patch.Manage != nil {
		channel.Permissions.Manage = *patch.Manage
	}
	if patch.Roles != nil {
		channel.Permissions.Roles = append([]int64(nil), (*patch.Roles)...)
	}
	if patch.ReadRoles != nil {
		channel.Permissions.ReadRoles = append([]int64(nil), (*patch.ReadRoles)...)
	}
	if patch.WriteRoles != nil {
		channel.Permissions.WriteRoles = append([]int64(nil), (*patch.WriteRoles)...)
	}
	channel.UpdatedAt = time.Now().UTC()

	return copyChannel(channel), nil
}

// PatchChannelSettings replaces the settings block wholesale; partial edits
// are the client's concern since every field has a meaningful zero value.
func (s *Store) PatchChannelSettings(channelID int64, settings models.ChannelSettings) (models.Channel, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	channel, exists := s.channels[channelID]
	if !exists {
		return models.Channel{}, apperrors.NotFound("channel not found")
	}

	channel.Settings = settings
	channel.UpdatedAt = time.Now().UTC()

	return copyChannel(channel), nil
}

func (s *Store) nextChannelPosition(sectionID int64) int {
	position := 0
	for _, channel := range s.channels {
		if channel.SectionID == sectionID && channel.Position >= position {
			position = channel.Position + 1
		}
	}
	return position
}
