// Package directory owns every channel, section, role and message log. All
// mutations go through its operations under one exclusive lock; callers only
// ever receive copies, never references into the maps.
package directory

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"kiama-backend/internal/models"
	"kiama-backend/internal/snowflake"
)

const (
	DefaultChannelName      = "general"
	DefaultSectionName      = "General"
	AnnouncementChannelName = "announcements"
	EveryoneRoleName        = "everyone"

	// HistoryWindow bounds how many messages a joining session receives.
	HistoryWindow = 50
)

type metricsState struct {
	messageCount int64
	mediaCount   int64
	lastActiveAt time.Time
	senders      map[string]struct{}
}

type Store struct {
	mutex sync.RWMutex

	channels  map[int64]*models.Channel
	sections  map[int64]*models.Section
	roles     map[int64]*models.Role
	userRoles map[string]map[int64]struct{}
	messages  map[int64][]models.Message
	metrics   map[int64]*metricsState

	defaultChannelID int64
	defaultSectionID int64
	everyoneRoleID   int64

	startedAt time.Time
	sugar     *zap.SugaredLogger
}

// New builds a store holding the undeletable defaults: the General section,
// the general text channel, the read-only announcements channel and the
// everyone role.
func New(sugar *zap.SugaredLogger) (*Store, error) {
	s := &Store{
		channels:  make(map[int64]*models.Channel),
		sections:  make(map[int64]*models.Section),
		roles:     make(map[int64]*models.Role),
		userRoles: make(map[string]map[int64]struct{}),
		messages:  make(map[int64][]models.Message),
		metrics:   make(map[int64]*metricsState),
		startedAt: time.Now().UTC(),
		sugar:     sugar,
	}

	now := time.Now().UTC()

	sectionID, err := snowflake.Generate()
	if err != nil {
		return nil, err
	}
	s.defaultSectionID = sectionID
	s.sections[sectionID] = &models.Section{
		ID:          sectionID,
		Name:        DefaultSectionName,
		Position:    0,
		Permissions: models.SectionPermissions{View: true, Manage: false},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		return nil, err
	}
	s.defaultChannelID = channelID
	s.channels[channelID] = &models.Channel{
		ID:          channelID,
		Name:        DefaultChannelName,
		Kind:        models.ChannelText,
		SectionID:   sectionID,
		Position:    0,
		Permissions: models.ChannelPermissions{Read: true, Write: true, Manage: false},
		Settings:    models.ChannelSettings{AllowPinning: true},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.messages[channelID] = []models.Message{}
	s.metrics[channelID] = newMetricsState()

	announcementsID, err := snowflake.Generate()
	if err != nil {
		return nil, err
	}
	s.channels[announcementsID] = &models.Channel{
		ID:          announcementsID,
		Name:        AnnouncementChannelName,
		Kind:        models.ChannelAnnouncement,
		SectionID:   sectionID,
		Position:    1,
		Permissions: models.ChannelPermissions{Read: true, Write: false, Manage: false},
		Settings:    models.ChannelSettings{AllowPinning: true},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.messages[announcementsID] = []models.Message{}
	s.metrics[announcementsID] = newMetricsState()

	roleID, err := snowflake.Generate()
	if err != nil {
		return nil, err
	}
	s.everyoneRoleID = roleID
	s.roles[roleID] = &models.Role{
		ID:       roleID,
		Name:     EveryoneRoleName,
		Position: 0,
		Permissions: models.RolePermissions{
			SendMessages: true,
			ViewChannels: true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s, nil
}

func newMetricsState() *metricsState {
	return &metricsState{senders: make(map[string]struct{})}
}

func (s *Store) DefaultChannelID() int64 {
	return s.defaultChannelID
}

func (s *Store) DefaultSectionID() int64 {
	return s.defaultSectionID
}

func (s *Store) EveryoneRoleID() int64 {
	return s.everyoneRoleID
}

// ServerMetrics aggregates per-channel counters for the metrics endpoint.
type ServerMetrics struct {
	UptimeSeconds int64 `json:"uptimeSeconds"`
	ChannelCount  int   `json:"channelCount"`
	SectionCount  int   `json:"sectionCount"`
	RoleCount     int   `json:"roleCount"`
	MessageCount  int64 `json:"messageCount"`
	MediaCount    int64 `json:"mediaCount"`
}

func (s *Store) ServerMetrics() ServerMetrics {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sm := ServerMetrics{
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ChannelCount:  len(s.channels),
		SectionCount:  len(s.sections),
		RoleCount:     len(s.roles),
	}
	for _, m := range s.metrics {
		sm.MessageCount += m.messageCount
		sm.MediaCount += m.mediaCount
	}
	return sm
}
