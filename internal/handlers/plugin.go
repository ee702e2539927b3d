package handlers

import (
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"kiama-backend/internal/models"
)

// GetClientPlugins is the discovery endpoint: enabled client plugin
// descriptors only, so a disabled renderer vanishes from clients.
func GetClientPlugins(w http.ResponseWriter, r *http.Request) {
	respondJson(w, plugins.EnabledClientPlugins())
}

func GetPluginStatus(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageServer }) {
		return
	}

	server, client := plugins.Records()
	respondJson(w, map[string]any{
		"server":           server,
		"client":           client,
		"killSwitchActive": plugins.KillSwitchActive(),
		"securityEvents":   plugins.SecurityEvents(),
	})
}

func setServerPluginEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageServer }) {
		return
	}

	changed, err := plugins.SetEnabled(chi.URLParam(r, "name"), enabled)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, map[string]bool{"changed": changed})
}

func EnableServerPlugin(w http.ResponseWriter, r *http.Request) {
	setServerPluginEnabled(w, r, true)
}

func DisableServerPlugin(w http.ResponseWriter, r *http.Request) {
	setServerPluginEnabled(w, r, false)
}

func setClientPluginEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageServer }) {
		return
	}

	changed, err := plugins.SetClientEnabled(chi.URLParam(r, "name"), enabled)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, map[string]bool{"changed": changed})
}

func EnableClientPlugin(w http.ResponseWriter, r *http.Request) {
	setClientPluginEnabled(w, r, true)
}

func DisableClientPlugin(w http.ResponseWriter, r *http.Request) {
	setClientPluginEnabled(w, r, false)
}

func EmergencyShutdown(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageServer }) {
		return
	}

	sugar.Warnf("User [%s] triggered the plugin emergency shutdown", principalOf(r))
	plugins.EmergencyShutdown()
	w.WriteHeader(http.StatusNoContent)
}

// plugin-mounted routes, keyed by exact path

type pluginRoute struct {
	pluginName string
	handler    http.HandlerFunc
}

var pluginRoutesMutex sync.RWMutex
var pluginRoutes = make(map[string]pluginRoute)

// AddPluginRoute is the host side of the routeHandler capability. Patterns
// are rooted under /plugins/ no matter what the plugin asks for.
func AddPluginRoute(pluginName string, pattern string, handler http.HandlerFunc) {
	if !strings.HasPrefix(pattern, "/plugins/") {
		pattern = "/plugins/" + strings.TrimPrefix(pattern, "/")
	}

	pluginRoutesMutex.Lock()
	pluginRoutes[pattern] = pluginRoute{pluginName: pluginName, handler: handler}
	pluginRoutesMutex.Unlock()

	sugar.Infof("Plugin [%s] mounted route [%s]", pluginName, pattern)
}

// DispatchPluginRoute consults the enabled flag per request, so disabling a
// plugin takes its routes down without unmounting them.
func DispatchPluginRoute(w http.ResponseWriter, r *http.Request) {
	pluginRoutesMutex.RLock()
	route, exists := pluginRoutes[r.URL.Path]
	pluginRoutesMutex.RUnlock()

	if !exists {
		http.NotFound(w, r)
		return
	}
	if !plugins.IsEnabled(route.pluginName) {
		http.Error(w, "Plugin is disabled", http.StatusServiceUnavailable)
		return
	}

	route.handler(w, r)
}
