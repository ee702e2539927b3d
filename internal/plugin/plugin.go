// Package plugin is the trust boundary for third-party extensions. Server
// plugins only ever see a capability-scoped API: operations they were not
// granted are not reachable at all. Disk-loaded units are checksum and
// signature verified before anything of theirs runs.
package plugin

import (
	"time"

	"kiama-backend/internal/models"
)

// Permission is the fixed capability vocabulary a plugin may declare.
type Permission string

const (
	PermMessageHandler Permission = "messageHandler"
	PermRouteHandler   Permission = "routeHandler"
	PermSendMessages   Permission = "sendMessages"
	PermModifyMessages Permission = "modifyMessages"
	PermFileSystem     Permission = "fileSystem"
	PermNetwork        Permission = "network"
	PermDatabase       Permission = "database"
)

func ValidPermission(p Permission) bool {
	switch p {
	case PermMessageHandler, PermRouteHandler, PermSendMessages, PermModifyMessages,
		PermFileSystem, PermNetwork, PermDatabase:
		return true
	}
	return false
}

// Manifest is the metadata block of a server plugin. For disk-loaded units
// Checksum must be the sha256 hex of the unit file and, when the host has a
// verification key configured, Signature an ed25519 signature over the same
// bytes.
type Manifest struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Author      string       `json:"author,omitempty"`
	Permissions []Permission `json:"permissions"`
	Unit        string       `json:"unit,omitempty"`
	Checksum    string       `json:"checksum,omitempty"`
	Signature   string       `json:"signature,omitempty"`
}

// ServerPlugin runs in-process once its unit passed verification.
type ServerPlugin interface {
	Manifest() Manifest
	Init(api *API) error
	Cleanup()
}

// ClientPluginMetadata describes client-executed extension code. The server
// never runs it; it only republishes verified metadata through the
// discovery endpoint, keyed by message type.
type ClientPluginMetadata struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	MessageTypes []string `json:"messageTypes"`
	DownloadUrl  string   `json:"downloadUrl"`
	Checksum     string   `json:"checksum"`
	Description  string   `json:"description,omitempty"`
	Author       string   `json:"author,omitempty"`
	Enabled      bool     `json:"enabled"`
}

// Record is the status view of a registered server plugin.
type Record struct {
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Permissions []Permission `json:"permissions"`
	Enabled     bool         `json:"enabled"`
}

// SecurityEvent is logged whenever a plugin fails verification.
type SecurityEvent struct {
	ID         string    `json:"id"`
	PluginName string    `json:"pluginName"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

// MessageHandler transforms a message mid-pipeline. Implementations must
// not touch id, author or channel; the pipeline restores them regardless.
type MessageHandler func(msg models.Message) models.Message
