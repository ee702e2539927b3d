package plugin

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kiama-backend/internal/apperrors"
)

type registered struct {
	plugin   ServerPlugin
	manifest Manifest
	enabled  bool
}

// HandlerEntry ties a registered message handler to its plugin so the
// pipeline can consult the live enabled flag at dispatch time.
type HandlerEntry struct {
	PluginName string
	Fn         MessageHandler
}

type Manager struct {
	mutex sync.RWMutex

	sugar     *zap.SugaredLogger
	host      HostFuncs
	publicKey ed25519.PublicKey

	plugins []*registered
	byName  map[string]*registered

	handlers []HandlerEntry

	clientPlugins map[string]*ClientPluginMetadata // messageType -> descriptor

	securityEvents []SecurityEvent
	recordEvent    func(event SecurityEvent)

	killSwitch bool
}

// New builds the sandbox. publicKey may be nil, which disables signature
// verification (checksum verification is never optional). recordEvent, when
// non-nil, receives every security event in addition to the in-memory log.
func New(sugar *zap.SugaredLogger, host HostFuncs, publicKey ed25519.PublicKey, recordEvent func(event SecurityEvent)) *Manager {
	m := &Manager{
		sugar:         sugar,
		host:          host,
		publicKey:     publicKey,
		byName:        make(map[string]*registered),
		clientPlugins: make(map[string]*ClientPluginMetadata),
		recordEvent:   recordEvent,
	}

	// the handler list lives here so dispatch can check enabled flags;
	// plugin-facing registrars funnel into it
	m.host.AddMessageHandler = m.addHandler
	if m.host.RegisterClientPlugin == nil {
		m.host.RegisterClientPlugin = m.RegisterClientPlugin
	}

	return m
}

func (m *Manager) addHandler(pluginName string, handler MessageHandler) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.handlers = append(m.handlers, HandlerEntry{PluginName: pluginName, Fn: handler})
	m.sugar.Infof("Plugin [%s] registered a message handler", pluginName)
}

// Register instantiates an in-process plugin. Disk-loaded units go through
// LoadDir/loadUnit, which verify integrity before ever reaching this point.
func (m *Manager) Register(p ServerPlugin) error {
	manifest := p.Manifest()
	if manifest.Name == "" {
		return apperrors.InvalidArg("plugin manifest has no name")
	}
	for _, perm := range manifest.Permissions {
		if !ValidPermission(perm) {
			return apperrors.InvalidArg(fmt.Sprintf("plugin [%s] declares unknown permission [%s]", manifest.Name, perm))
		}
	}

	m.mutex.Lock()
	if _, exists := m.byName[manifest.Name]; exists {
		m.mutex.Unlock()
		return apperrors.AlreadyExists(fmt.Sprintf("plugin [%s] is already registered", manifest.Name))
	}

	reg := &registered{plugin: p, manifest: manifest, enabled: !m.killSwitch}
	m.plugins = append(m.plugins, reg)
	m.byName[manifest.Name] = reg
	killed := m.killSwitch
	m.mutex.Unlock()

	if killed {
		m.sugar.Warnf("Plugin [%s] registered disabled, kill switch is active", manifest.Name)
		return nil
	}

	api := buildAPI(manifest, m.host, m.sugar)
	if err := p.Init(api); err != nil {
		m.mutex.Lock()
		reg.enabled = false
		m.mutex.Unlock()
		return apperrors.Wrap(apperrors.CodeInternal, fmt.Sprintf("plugin [%s] init failed", manifest.Name), err)
	}

	m.sugar.Infof("Registered server plugin [%s] version [%s]", manifest.Name, manifest.Version)
	return nil
}

// LoadDir loads every *.json manifest in dir as a verified WASM unit.
// A plugin that fails verification is rejected and logged; loading
// continues with the rest.
func (m *Manager) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.sugar.Debugf("Plugins directory [%s] doesn't exist, nothing to load", dir)
			return nil
		}
		return err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := m.loadUnit(filepath.Join(dir, name)); err != nil {
			m.sugar.Errorf("Plugin manifest [%s] rejected: %v", name, err)
		}
	}
	return nil
}

func (m *Manager) loadUnit(manifestPath string) error {
	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "couldn't parse plugin manifest", err)
	}
	if manifest.Name == "" || manifest.Unit == "" || manifest.Checksum == "" {
		return apperrors.InvalidArg("plugin manifest needs name, unit and checksum")
	}

	unitBytes, err := os.ReadFile(filepath.Join(filepath.Dir(manifestPath), manifest.Unit))
	if err != nil {
		return err
	}

	if err := m.verifyUnit(manifest, unitBytes); err != nil {
		return err
	}

	return m.Register(newWasmPlugin(manifest, unitBytes, m.sugar))
}

// verifyUnit is the integrity gate. It is not bypassable: a mismatch means
// the plugin's init never runs.
func (m *Manager) verifyUnit(manifest Manifest, unitBytes []byte) error {
	sum := sha256.Sum256(unitBytes)
	computed := hex.EncodeToString(sum[:])

	if !strings.EqualFold(computed, manifest.Checksum) {
		m.logSecurityEvent(manifest.Name, fmt.Sprintf("checksum mismatch: declared %s, computed %s", manifest.Checksum, computed))
		return apperrors.Integrity("plugin checksum mismatch")
	}

	if m.publicKey != nil {
		if manifest.Signature == "" {
			m.logSecurityEvent(manifest.Name, "missing signature while signing key is configured")
			return apperrors.Integrity("plugin signature missing")
		}
		signature, err := base64.StdEncoding.DecodeString(manifest.Signature)
		if err != nil {
			m.logSecurityEvent(manifest.Name, "malformed signature")
			return apperrors.Integrity("plugin signature malformed")
		}
		if !ed25519.Verify(m.publicKey, unitBytes, signature) {
			m.logSecurityEvent(manifest.Name, "signature verification failed")
			return apperrors.Integrity("plugin signature mismatch")
		}
	}

	return nil
}

func (m *Manager) logSecurityEvent(pluginName string, reason string) {
	event := SecurityEvent{
		ID:         uuid.NewString(),
		PluginName: pluginName,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}

	m.mutex.Lock()
	m.securityEvents = append(m.securityEvents, event)
	m.mutex.Unlock()

	m.sugar.Warnf("SECURITY: plugin [%s]: %s", pluginName, reason)

	if m.recordEvent != nil {
		m.recordEvent(event)
	}
}

func (m *Manager) SecurityEvents() []SecurityEvent {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return append([]SecurityEvent(nil), m.securityEvents...)
}

// SetEnabled flips a server plugin's flag. Setting the current state again
// is a no-op reporting changed=false, never an error. Enabling a plugin
// while the kill switch is active lifts the switch; every other plugin
// stays off through its own flag.
func (m *Manager) SetEnabled(pluginName string, enabled bool) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	reg, exists := m.byName[pluginName]
	if !exists {
		return false, apperrors.NotFound("plugin not found")
	}

	changed := m.liftKillSwitchLocked(enabled)
	if reg.enabled != enabled {
		reg.enabled = enabled
		changed = true
		m.sugar.Infof("Server plugin [%s] enabled=%t", pluginName, enabled)
	}
	return changed, nil
}

// liftKillSwitchLocked clears the kill switch on an explicit operator
// re-enable and reports whether it did. Callers hold m.mutex.
func (m *Manager) liftKillSwitchLocked(enabled bool) bool {
	if !enabled || !m.killSwitch {
		return false
	}
	m.killSwitch = false
	m.sugar.Warn("Kill switch lifted by an explicit plugin enable")
	return true
}

// IsEnabled is the live dispatch-time check; the kill switch wins over
// individual flags.
func (m *Manager) IsEnabled(pluginName string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.killSwitch {
		return false
	}
	reg, exists := m.byName[pluginName]
	return exists && reg.enabled
}

// Handlers returns every registered handler in registration order. Callers
// pair it with IsEnabled so disabling takes effect without unregistering.
func (m *Manager) Handlers() []HandlerEntry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return append([]HandlerEntry(nil), m.handlers...)
}

// EmergencyShutdown atomically disables every plugin, server and client
// alike. Handlers stay registered; dispatch just stops reaching them.
func (m *Manager) EmergencyShutdown() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.killSwitch = true
	for _, reg := range m.plugins {
		reg.enabled = false
	}
	for _, metadata := range m.clientPlugins {
		metadata.Enabled = false
	}

	m.sugar.Warn("EMERGENCY PLUGIN SHUTDOWN: all plugins disabled")
}

func (m *Manager) KillSwitchActive() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.killSwitch
}

// RegisterClientPlugin files a descriptor under each of its message types.
// The last registration for a type wins.
func (m *Manager) RegisterClientPlugin(metadata ClientPluginMetadata) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	metadata.Enabled = !m.killSwitch
	for _, messageType := range metadata.MessageTypes {
		md := metadata
		m.clientPlugins[messageType] = &md
	}

	m.sugar.Infof("Registered client plugin [%s] for types %v", metadata.Name, metadata.MessageTypes)
}

func (m *Manager) SetClientEnabled(pluginName string, enabled bool) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	changed := false
	found := false
	for _, metadata := range m.clientPlugins {
		if metadata.Name != pluginName {
			continue
		}
		found = true
		if metadata.Enabled != enabled {
			metadata.Enabled = enabled
			changed = true
		}
	}

	if !found {
		return false, apperrors.NotFound("plugin not found")
	}
	if m.liftKillSwitchLocked(enabled) {
		changed = true
	}
	if changed {
		m.sugar.Infof("Client plugin [%s] enabled=%t", pluginName, enabled)
	}
	return changed, nil
}

// ClientPluginForType serves per-type lookup for message rendering.
func (m *Manager) ClientPluginForType(messageType string) (ClientPluginMetadata, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	metadata, exists := m.clientPlugins[messageType]
	if !exists || !metadata.Enabled || m.killSwitch {
		return ClientPluginMetadata{}, false
	}
	return *metadata, true
}

// EnabledClientPlugins lists each enabled descriptor once, for discovery.
func (m *Manager) EnabledClientPlugins() []ClientPluginMetadata {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	seen := make(map[string]struct{})
	list := []ClientPluginMetadata{}
	for _, metadata := range m.clientPlugins {
		if !metadata.Enabled {
			continue
		}
		if _, dup := seen[metadata.Name]; dup {
			continue
		}
		seen[metadata.Name] = struct{}{}
		list = append(list, *metadata)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Records reports the status view of server and client plugins.
func (m *Manager) Records() ([]Record, []ClientPluginMetadata) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	server := make([]Record, 0, len(m.plugins))
	for _, reg := range m.plugins {
		server = append(server, Record{
			Name:        reg.manifest.Name,
			Version:     reg.manifest.Version,
			Permissions: append([]Permission(nil), reg.manifest.Permissions...),
			Enabled:     reg.enabled && !m.killSwitch,
		})
	}

	seen := make(map[string]struct{})
	client := []ClientPluginMetadata{}
	for _, metadata := range m.clientPlugins {
		if _, dup := seen[metadata.Name]; dup {
			continue
		}
		seen[metadata.Name] = struct{}{}
		client = append(client, *metadata)
	}
	sort.Slice(client, func(i, j int) bool { return client[i].Name < client[j].Name })

	return server, client
}

// Cleanup runs every plugin's cleanup hook, for server shutdown.
func (m *Manager) Cleanup() {
	m.mutex.RLock()
	plugins := append([]*registered(nil), m.plugins...)
	m.mutex.RUnlock()

	for _, reg := range plugins {
		reg.plugin.Cleanup()
	}
}
