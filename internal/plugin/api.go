package plugin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"kiama-backend/internal/apperrors"
	"kiama-backend/internal/keyValue"
	"kiama-backend/internal/models"
)

// One interface per capability. Plugins receive only the interfaces
// matching their granted permissions; everything else is simply absent.

type MessageHandlerRegistrar interface {
	AddMessageHandler(handler MessageHandler)
}

type RouteRegistrar interface {
	AddRoute(pattern string, handler http.HandlerFunc)
}

type MessageSender interface {
	SendMessage(channelID int64, content string, msgType string, payload map[string]any) error
}

// MessagePatch mirrors the directory's auditable modify operation. Id,
// author and channel are not expressible here on purpose.
type MessagePatch struct {
	Content *string        `json:"content"`
	Type    *string        `json:"type"`
	Payload map[string]any `json:"payload"`
}

type MessageModifier interface {
	ModifyMessage(messageID int64, patch MessagePatch) error
}

// FileSystem is rooted in the plugin's own data directory; paths cannot
// escape it.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

type Network interface {
	HttpGet(ctx context.Context, url string) ([]byte, error)
}

// Database is a plugin-scoped key/value namespace.
type Database interface {
	Get(key string) (string, error)
	Set(key string, value string, expires time.Duration) error
}

// HostFuncs is what the server wires into the sandbox. Nil fields mean the
// host doesn't offer that capability at all, no matter what a plugin
// declares.
type HostFuncs struct {
	AddMessageHandler    func(pluginName string, handler MessageHandler)
	AddRoute             func(pluginName string, pattern string, handler http.HandlerFunc)
	SendMessage          func(pluginName string, msg models.Message) error
	ModifyMessage        func(pluginName string, messageID int64, patch MessagePatch) error
	RegisterClientPlugin func(metadata ClientPluginMetadata)
	DataDir              string
}

// API is the capability-scoped object handed to a plugin's Init. Accessors
// follow the comma-ok convention: an ungranted capability yields (nil,
// false) and nothing callable.
type API struct {
	pluginName string
	sugar      *zap.SugaredLogger
	registrar  func(metadata ClientPluginMetadata)

	messageHandlers MessageHandlerRegistrar
	routes          RouteRegistrar
	sender          MessageSender
	modifier        MessageModifier
	fileSystem      FileSystem
	network         Network
	database        Database
}

// Log is always available; output is tagged with the plugin's name.
func (a *API) Log() *zap.SugaredLogger {
	return a.sugar
}

// RegisterClientPlugin is metadata-only and therefore not capability-gated.
func (a *API) RegisterClientPlugin(metadata ClientPluginMetadata) {
	if a.registrar != nil {
		a.registrar(metadata)
	}
}

func (a *API) MessageHandlers() (MessageHandlerRegistrar, bool) {
	return a.messageHandlers, a.messageHandlers != nil
}

func (a *API) Routes() (RouteRegistrar, bool) {
	return a.routes, a.routes != nil
}

func (a *API) Sender() (MessageSender, bool) {
	return a.sender, a.sender != nil
}

func (a *API) Modifier() (MessageModifier, bool) {
	return a.modifier, a.modifier != nil
}

func (a *API) FileSystem() (FileSystem, bool) {
	return a.fileSystem, a.fileSystem != nil
}

func (a *API) Network() (Network, bool) {
	return a.network, a.network != nil
}

func (a *API) Database() (Database, bool) {
	return a.database, a.database != nil
}

type handlerRegistrar struct {
	pluginName string
	add        func(pluginName string, handler MessageHandler)
}

func (r *handlerRegistrar) AddMessageHandler(handler MessageHandler) {
	r.add(r.pluginName, handler)
}

type routeRegistrar struct {
	pluginName string
	add        func(pluginName string, pattern string, handler http.HandlerFunc)
}

func (r *routeRegistrar) AddRoute(pattern string, handler http.HandlerFunc) {
	r.add(r.pluginName, pattern, handler)
}

type messageSender struct {
	pluginName string
	send       func(pluginName string, msg models.Message) error
}

func (s *messageSender) SendMessage(channelID int64, content string, msgType string, payload map[string]any) error {
	return s.send(s.pluginName, models.Message{
		ChannelID: channelID,
		Content:   content,
		Type:      msgType,
		Payload:   payload,
	})
}

type messageModifier struct {
	pluginName string
	modify     func(pluginName string, messageID int64, patch MessagePatch) error
}

func (m *messageModifier) ModifyMessage(messageID int64, patch MessagePatch) error {
	return m.modify(m.pluginName, messageID, patch)
}

// scopedFS confines file access to dataDir/<plugin>.
type scopedFS struct {
	root string
}

func (f *scopedFS) resolve(name string) (string, error) {
	cleaned := filepath.Clean("/" + name)
	full := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(full, f.root+string(os.PathSeparator)) && full != f.root {
		return "", apperrors.Forbidden("path escapes plugin data directory")
	}
	return full, nil
}

func (f *scopedFS) ReadFile(name string) ([]byte, error) {
	full, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (f *scopedFS) WriteFile(name string, data []byte) error {
	full, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0644)
}

type httpNetwork struct {
	client *http.Client
}

func (n *httpNetwork) HttpGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// keyValueDatabase namespaces plugin keys so plugins can't read each
// other's state.
type keyValueDatabase struct {
	pluginName string
}

func (d *keyValueDatabase) key(key string) string {
	return fmt.Sprintf("plugin:%s:%s", d.pluginName, key)
}

func (d *keyValueDatabase) Get(key string) (string, error) {
	return keyValue.Get(d.key(key))
}

func (d *keyValueDatabase) Set(key string, value string, expires time.Duration) error {
	return keyValue.Set(d.key(key), value, expires)
}

// buildAPI grants exactly the declared permissions the host can serve.
func buildAPI(manifest Manifest, host HostFuncs, sugar *zap.SugaredLogger) *API {
	api := &API{
		pluginName: manifest.Name,
		sugar:      sugar.Named(manifest.Name),
		registrar:  host.RegisterClientPlugin,
	}

	for _, perm := range manifest.Permissions {
		switch perm {
		case PermMessageHandler:
			if host.AddMessageHandler != nil {
				api.messageHandlers = &handlerRegistrar{manifest.Name, host.AddMessageHandler}
			}
		case PermRouteHandler:
			if host.AddRoute != nil {
				api.routes = &routeRegistrar{manifest.Name, host.AddRoute}
			}
		case PermSendMessages:
			if host.SendMessage != nil {
				api.sender = &messageSender{manifest.Name, host.SendMessage}
			}
		case PermModifyMessages:
			if host.ModifyMessage != nil {
				api.modifier = &messageModifier{manifest.Name, host.ModifyMessage}
			}
		case PermFileSystem:
			if host.DataDir != "" {
				api.fileSystem = &scopedFS{root: filepath.Join(host.DataDir, manifest.Name)}
			}
		case PermNetwork:
			api.network = &httpNetwork{client: &http.Client{Timeout: 10 * time.Second}}
		case PermDatabase:
			api.database = &keyValueDatabase{pluginName: manifest.Name}
		}
	}

	return api
}
