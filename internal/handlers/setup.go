package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"kiama-backend/internal/directory"
	"kiama-backend/internal/models"
	"kiama-backend/internal/pipeline"
	"kiama-backend/internal/plugin"
)

var sugar *zap.SugaredLogger
var store *directory.Store
var plugins *plugin.Manager
var pipe *pipeline.Pipeline
var startedAt time.Time

// Setup wires the package state. It must run before any plugin registers,
// because a plugin's Init may mount routes through AddPluginRoute.
func Setup(_sugar *zap.SugaredLogger, _store *directory.Store, _plugins *plugin.Manager, _pipe *pipeline.Pipeline) {
	sugar = _sugar
	store = _store
	plugins = _plugins
	pipe = _pipe
	startedAt = time.Now().UTC()

	pluginRoutesMutex.Lock()
	pluginRoutes = make(map[string]pluginRoute)
	pluginRoutesMutex.Unlock()
}

// Serve builds the router and blocks on the listener.
func Serve(isHttps bool, cfg *models.ConfigFile, websocketHandler http.HandlerFunc) error {
	r := chi.NewRouter()
	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			r.Post("/check", CheckAuth)
		})

		api.Route("/channels", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/", GetChannels)
			r.Post("/", CreateChannel)
			r.Delete("/{channelID}", DeleteChannel)
			r.Patch("/{channelID}/permissions", PatchChannelPermissions)
			r.Patch("/{channelID}/settings", PatchChannelSettings)
			r.Get("/{channelID}/metrics", GetChannelMetrics)
			r.Get("/{channelID}/media", GetChannelMedia)
			r.Post("/{channelID}/media", UploadChannelMedia)
		})

		api.Route("/sections", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/", GetSections)
			r.Post("/", CreateSection)
			r.Delete("/{sectionID}", DeleteSection)
		})

		api.Route("/roles", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/", GetRoles)
			r.Post("/", CreateRole)
			r.Patch("/{roleID}", PatchRole)
			r.Delete("/{roleID}", DeleteRole)
			r.Post("/{roleID}/assign", AssignRole)
			r.Post("/{roleID}/unassign", UnassignRole)
		})

		api.Route("/emotes", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/", GetEmotes)
			r.Post("/", UploadEmote)
		})

		api.With(UserVerifier).Get("/client-plugins", GetClientPlugins)

		api.Route("/plugins", func(r chi.Router) {
			r.Use(UserVerifier)
			r.Get("/status", GetPluginStatus)
			r.Post("/server/{name}/enable", EnableServerPlugin)
			r.Post("/server/{name}/disable", DisableServerPlugin)
			r.Post("/client/{name}/enable", EnableClientPlugin)
			r.Post("/client/{name}/disable", DisableClientPlugin)
			r.Post("/emergency-shutdown", EmergencyShutdown)
		})

		api.With(UserVerifier).Get("/metrics", GetServerMetrics)
	})

	// routes mounted by plugins through the routeHandler capability
	r.HandleFunc("/plugins/*", DispatchPluginRoute)

	var websocketPath string

	if cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
		r.Handle("/cdn/*", http.StripPrefix("/cdn/", http.FileServer(http.Dir("./public"))))
	}

	r.Get(websocketPath, websocketHandler)

	address := fmt.Sprintf("%s:%s", cfg.Address, cfg.Port)

	if isHttps {
		return http.ListenAndServeTLS(address, cfg.TlsCert, cfg.TlsKey, r)
	}
	return http.ListenAndServe(address, r)
}
