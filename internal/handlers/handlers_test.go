package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"kiama-backend/internal/auth"
	"kiama-backend/internal/directory"
	"kiama-backend/internal/keyValue"
	"kiama-backend/internal/models"
	"kiama-backend/internal/pipeline"
	"kiama-backend/internal/plugin"
	"kiama-backend/internal/plugin/builtin"
	"kiama-backend/internal/snowflake"
)

func newTestHandlers(t *testing.T) {
	t.Helper()

	_ = snowflake.Setup(0)
	keyValue.Setup(zap.NewNop().Sugar(), nil, true)
	auth.Setup("test-secret", "")

	logger := zap.NewNop().Sugar()
	testStore, err := directory.New(logger)
	if err != nil {
		t.Fatal(err)
	}
	testPlugins := plugin.New(logger, plugin.HostFuncs{AddRoute: AddPluginRoute}, nil, nil)
	testPipe := pipeline.New(logger, testStore, testPlugins, nil, nil)

	Setup(logger, testStore, testPlugins, testPipe)
}

// grantManage gives the principal a role carrying the named capabilities.
func grantManage(t *testing.T, principal string, permissions models.RolePermissions) {
	t.Helper()

	role, err := store.CreateRole("admins-"+principal, "", permissions)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AssignRole(principal, role.ID); err != nil {
		t.Fatal(err)
	}
}

func asPrincipal(r *http.Request, principal string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalKeyType{}, principal))
}

func postJson(t *testing.T, path string, principal string, body any) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest("POST", path, bytes.NewReader(bodyBytes))
	return httptest.NewRecorder(), asPrincipal(r, principal)
}

func TestCreateChannelRequiresManageChannels(t *testing.T) {
	newTestHandlers(t)

	w, r := postJson(t, "/api/channels", "alice", createChannelRequest{Name: "offtopic"})
	CreateChannel(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 without manageChannels", w.Code)
	}

	grantManage(t, "alice", models.RolePermissions{ManageChannels: true})

	w, r = postJson(t, "/api/channels", "alice", createChannelRequest{Name: "offtopic"})
	CreateChannel(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var channel models.Channel
	if err := json.Unmarshal(w.Body.Bytes(), &channel); err != nil {
		t.Fatal(err)
	}
	if channel.Name != "offtopic" || channel.ID == 0 {
		t.Errorf("channel = %+v", channel)
	}
}

func TestCreateChannelRejectsEmptyName(t *testing.T) {
	newTestHandlers(t)
	grantManage(t, "alice", models.RolePermissions{ManageChannels: true})

	w, r := postJson(t, "/api/channels", "alice", createChannelRequest{})
	CreateChannel(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing name", w.Code)
	}
}

func TestPermissionPatchRoundTrip(t *testing.T) {
	newTestHandlers(t)
	grantManage(t, "alice", models.RolePermissions{ManageChannels: true, ManageRoles: true})

	role, err := store.CreateRole("mods", "", models.RolePermissions{SendMessages: true, ViewChannels: true})
	if err != nil {
		t.Fatal(err)
	}
	channel, err := store.CreateChannel("staff", models.ChannelText, 0, models.ChannelSettings{})
	if err != nil {
		t.Fatal(err)
	}

	bodyBytes, _ := json.Marshal(map[string]any{"writeRoles": []int64{role.ID}})
	r := httptest.NewRequest("PATCH", "/api/channels/x/permissions", bytes.NewReader(bodyBytes))

	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("channelID", strconv.FormatInt(channel.ID, 10))
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx))
	r = asPrincipal(r, "alice")

	w := httptest.NewRecorder()
	PatchChannelPermissions(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var patched models.Channel
	if err := json.Unmarshal(w.Body.Bytes(), &patched); err != nil {
		t.Fatal(err)
	}
	if len(patched.Permissions.WriteRoles) != 1 || patched.Permissions.WriteRoles[0] != role.ID {
		t.Errorf("writeRoles = %v, want [%d]", patched.Permissions.WriteRoles, role.ID)
	}
}

func TestDispatchPluginRoute(t *testing.T) {
	newTestHandlers(t)

	p := &routePlugin{}
	if err := plugins.Register(p); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "/plugins/echo/ping", nil)
	w := httptest.NewRecorder()
	DispatchPluginRoute(w, r)
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}

	// disabling the plugin takes its routes down at dispatch time
	if _, err := plugins.SetEnabled("echo", false); err != nil {
		t.Fatal(err)
	}
	w = httptest.NewRecorder()
	DispatchPluginRoute(w, httptest.NewRequest("GET", "/plugins/echo/ping", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while disabled", w.Code)
	}

	w = httptest.NewRecorder()
	DispatchPluginRoute(w, httptest.NewRequest("GET", "/plugins/nothing/here", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unmounted path", w.Code)
	}
}

// Registration must work with nothing but Setup done, in the order the
// server boots: wiring first, plugins after. The poll plugin mounts a route
// during Init, which dereferences the package logger.
func TestSetupPrecedesPluginRegistration(t *testing.T) {
	newTestHandlers(t)

	if err := plugins.Register(builtin.NewPollPlugin()); err != nil {
		t.Fatal(err)
	}
	if err := plugins.Register(builtin.NewMessageLoggerPlugin()); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	DispatchPluginRoute(w, httptest.NewRequest("GET", "/plugins/poll/results", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 from the poll results route", w.Code)
	}
}

func TestEmergencyShutdownEndpoint(t *testing.T) {
	newTestHandlers(t)
	grantManage(t, "root", models.RolePermissions{ManageServer: true})

	w, r := postJson(t, "/api/plugins/emergency-shutdown", "intruder", nil)
	EmergencyShutdown(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 without manageServer", w.Code)
	}
	if plugins.KillSwitchActive() {
		t.Fatal("kill switch tripped by an unauthorized caller")
	}

	w, r = postJson(t, "/api/plugins/emergency-shutdown", "root", nil)
	EmergencyShutdown(w, r)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if !plugins.KillSwitchActive() {
		t.Error("kill switch not active")
	}
}

type routePlugin struct{}

func (p *routePlugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:        "echo",
		Version:     "1.0.0",
		Permissions: []plugin.Permission{plugin.PermRouteHandler},
	}
}

func (p *routePlugin) Init(api *plugin.API) error {
	routes, granted := api.Routes()
	if !granted {
		return nil
	}
	routes.AddRoute("/echo/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	return nil
}

func (p *routePlugin) Cleanup() {}
