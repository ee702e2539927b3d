package models

import "time"

type ChannelKind string

const (
	ChannelText         ChannelKind = "text"
	ChannelVoice        ChannelKind = "voice"
	ChannelAnnouncement ChannelKind = "announcement"
)

// ChannelPermissions controls who can read and write a channel.
// Roles is the legacy combined gate: when non-empty it gates both actions.
// ReadRoles/WriteRoles, when non-empty, are the authority for their action
// regardless of the Read/Write booleans.
type ChannelPermissions struct {
	Read       bool    `json:"read"`
	Write      bool    `json:"write"`
	Manage     bool    `json:"manage"`
	Roles      []int64 `json:"roles,omitempty"`
	ReadRoles  []int64 `json:"readRoles,omitempty"`
	WriteRoles []int64 `json:"writeRoles,omitempty"`
}

type ChannelSettings struct {
	Nsfw            bool   `json:"nsfw"`
	SlowModeSeconds int    `json:"slowModeSeconds"`
	Topic           string `json:"topic"`
	AllowPinning    bool   `json:"allowPinning"`
}

type Channel struct {
	ID          int64              `json:"id,string"`
	Name        string             `json:"name"`
	Kind        ChannelKind        `json:"kind"`
	SectionID   int64              `json:"sectionID,string"`
	Position    int                `json:"position"`
	Permissions ChannelPermissions `json:"permissions"`
	Settings    ChannelSettings    `json:"settings"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type SectionPermissions struct {
	View   bool    `json:"view"`
	Manage bool    `json:"manage"`
	Roles  []int64 `json:"roles,omitempty"`
}

type Section struct {
	ID          int64              `json:"id,string"`
	Name        string             `json:"name"`
	Position    int                `json:"position"`
	Permissions SectionPermissions `json:"permissions"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// RolePermissions is the capability bundle a role grants to its holders.
type RolePermissions struct {
	ManageServer   bool `json:"manageServer"`
	ManageChannels bool `json:"manageChannels"`
	ManageRoles    bool `json:"manageRoles"`
	KickMembers    bool `json:"kickMembers"`
	BanMembers     bool `json:"banMembers"`
	SendMessages   bool `json:"sendMessages"`
	ViewChannels   bool `json:"viewChannels"`
}

type Role struct {
	ID          int64           `json:"id,string"`
	Name        string          `json:"name"`
	Color       string          `json:"color,omitempty"`
	Position    int             `json:"position"`
	Permissions RolePermissions `json:"permissions"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Message is immutable once appended. Only a plugin holding the
// modifyMessages capability may patch one, which also emits message-update.
type Message struct {
	ID              int64          `json:"id,string"`
	ChannelID       int64          `json:"channelID,string"`
	Author          string         `json:"author"`
	Content         string         `json:"content"`
	Type            string         `json:"type"`
	ServerTimestamp time.Time      `json:"serverTimestamp"`
	Payload         map[string]any `json:"payload,omitempty"`
}

type ChannelMetrics struct {
	MessageCount  int64     `json:"messageCount"`
	MediaCount    int64     `json:"mediaCount"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
	UniqueSenders int       `json:"uniqueSenders"`
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaOther MediaKind = "other"
)

type MediaEntry struct {
	ID           int64     `json:"id,string"`
	ChannelID    int64     `json:"channelID,string"`
	Author       string    `json:"author"`
	OriginalName string    `json:"originalName"`
	StoredName   string    `json:"storedName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	Kind         MediaKind `json:"kind"`
	Url          string    `json:"url"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type ConfigFile struct {
	Address            string
	Port               string
	BehindNginx        bool
	TlsCert            string
	TlsKey             string
	PrintHttpRequests  bool
	LogToFile          bool
	LogLevel           string
	JwtSecret          string
	ServerPasswordHash string
	SnowflakeWorkerID  int64
	SelfContained      bool
	DbUser             string
	DbPassword         string
	DbAddress          string
	DbPort             string
	DbDatabase         string
	RedisAddress       string
	PluginsDir         string
	PluginPublicKey    string
}
