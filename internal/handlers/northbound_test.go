package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonglijing/nbconsole/internal/database"
	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
)

type fakeRuntime struct {
	mu       sync.Mutex
	applied  []string
	reloaded []string
	removed  []string
	statuses map[string]models.NorthboundStatus
	failNext error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{statuses: map[string]models.NorthboundStatus{}}
}

func (f *fakeRuntime) Apply(_ context.Context, rec *models.NorthboundConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, rec.Name)
	if !rec.IsEnabled() {
		delete(f.statuses, rec.Name)
		return nil
	}
	f.statuses[rec.Name] = models.NorthboundStatus{
		Name: rec.Name, Type: rec.Type, Registered: true, Enabled: true,
		Connected: true, BreakerState: "closed", UploadInterval: rec.UploadInterval,
	}
	return nil
}

func (f *fakeRuntime) Reload(_ context.Context, rec *models.NorthboundConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.reloaded = append(f.reloaded, rec.Name)
	return nil
}

func (f *fakeRuntime) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	delete(f.statuses, name)
}

func (f *fakeRuntime) Status(name string) (models.NorthboundStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[name]
	return st, ok
}

func (f *fakeRuntime) Statuses() []models.NorthboundStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.NorthboundStatus, 0, len(f.statuses))
	for _, st := range f.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type testEnv struct {
	router  *mux.Router
	store   *database.Store
	runtime *fakeRuntime
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := database.Open(database.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rt := newFakeRuntime()
	h := NewHandler(Options{Store: store, Runtime: rt})

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/northbound", h.GetNorthboundConfigs).Methods("GET")
	api.HandleFunc("/northbound/status", h.GetNorthboundStatus).Methods("GET")
	api.HandleFunc("/northbound/schema", h.GetNorthboundSchema).Methods("GET")
	api.HandleFunc("/northbound/types", h.GetNorthboundSupportedTypes).Methods("GET")
	api.HandleFunc("/northbound", h.CreateNorthboundConfig).Methods("POST")
	api.HandleFunc("/northbound/{id}", h.GetNorthboundConfig).Methods("GET")
	api.HandleFunc("/northbound/{id}", h.UpdateNorthboundConfig).Methods("PUT")
	api.HandleFunc("/northbound/{id}", h.DeleteNorthboundConfig).Methods("DELETE")
	api.HandleFunc("/northbound/{id}/toggle", h.ToggleNorthboundEnable).Methods("POST")
	api.HandleFunc("/northbound/{id}/reload", h.ReloadNorthboundConfig).Methods("POST")
	api.HandleFunc("/gateway/config", h.GetGatewayConfig).Methods("GET")
	api.HandleFunc("/gateway/config", h.UpdateGatewayConfig).Methods("PUT")
	api.HandleFunc("/gateway/northbound/sync-identity", h.SyncGatewayIdentityToNorthbound).Methods("POST")

	return &testEnv{router: r, store: store, runtime: rt}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func (e *testEnv) createPandax(t *testing.T, name string, enabled bool) models.NorthboundView {
	t.Helper()
	rr, env := e.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name":    name,
		"type":    "pandax",
		"enabled": enabled,
		"config": map[string]interface{}{
			"serverUrl": "tcp://10.0.0.1:1883",
			"username":  "token-" + name,
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view models.NorthboundView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func TestCreateSchemaDriven_MissingRequiredReturnsFieldErrors(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name":   "pdx",
		"type":   "pandax",
		"config": map[string]interface{}{"serverUrl": "tcp://10.0.0.1:1883"},
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, body.Success)
	assert.Equal(t, apperrors.CodeNorthboundConfigInvalid, body.Code)

	var fieldErrs map[string]string
	require.NoError(t, json.Unmarshal(body.Data, &fieldErrs))
	assert.Contains(t, fieldErrs, "username")
	assert.NotContains(t, fieldErrs, "serverUrl")

	all, err := env.store.GetAllNorthboundConfigs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateSchemaDriven_PersistsNormalizedConfig(t *testing.T) {
	env := newTestEnv(t)

	view := env.createPandax(t, "pdx", true)
	require.NotZero(t, view.ID)
	assert.Equal(t, "tcp://10.0.0.1:1883", view.ServerURL)
	assert.Equal(t, 5000, view.UploadInterval)
	require.NotNil(t, view.Connection)
	assert.Equal(t, "tcp://10.0.0.1:1883", view.Connection.ServerURL)
	require.NotNil(t, view.Status)
	assert.True(t, view.Status.Connected)

	stored, err := env.store.GetNorthboundConfigByID(context.Background(), view.ID)
	require.NoError(t, err)
	cfg, err := nbconfig.ParseJSON(stored.Config)
	require.NoError(t, err)
	assert.Equal(t, true, cfg["gatewayMode"])
	assert.Equal(t, json.Number("5000"), cfg["uploadIntervalMs"])
	assert.Equal(t, "token-pdx", stored.Username)
	assert.Equal(t, []string{"pdx"}, env.runtime.applied)
}

func TestCreateFreeForm_RequiresJSONObject(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name":   "raw",
		"type":   "mqtt",
		"config": "{not json",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeNorthboundConfigInvalid, body.Code)

	rr, _ = env.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name":   "raw",
		"type":   "mqtt",
		"config": `{"broker":"tcp://127.0.0.1:1883","topic":"t"}`,
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestCreate_RejectsUnsupportedTypeAndDuplicateName(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name": "x", "type": "kafka", "config": "{}",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeNorthboundTypeUnsupported, body.Code)

	env.createPandax(t, "dup", false)
	rr, body = env.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name": "dup", "type": "mqtt", "config": "{}",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeNorthboundNameExists, body.Code)
}

func TestCreate_LegacyTypeAliasStoredAsSagoo(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name": "legacy",
		"type": "XUNJI",
		"config": map[string]interface{}{
			"serverUrl":  "tcp://10.0.0.2:1883",
			"username":   "u",
			"productKey": "pk",
			"deviceKey":  "dk",
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view models.NorthboundView
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.Equal(t, "sagoo", view.Type)
}

func TestGetUpdateDelete_NotFoundAndInvalidID(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodGet, "/api/northbound/99", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apperrors.CodeNorthboundNotFound, body.Code)

	rr, body = env.do(t, http.MethodDelete, "/api/northbound/0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeInvalidID, body.Code)

	rr, body = env.do(t, http.MethodPut, "/api/northbound/abc", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeInvalidID, body.Code)
}

func TestUpdate_RenameRemovesOldRuntimeEntry(t *testing.T) {
	env := newTestEnv(t)
	view := env.createPandax(t, "old", true)

	rr, body := env.do(t, http.MethodPut, "/api/northbound/"+strconv.FormatInt(view.ID, 10), map[string]interface{}{
		"name":    "new",
		"type":    "pandax",
		"enabled": 1,
		"config":  view.Config,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var updated models.NorthboundView
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	assert.Equal(t, "new", updated.Name)
	assert.Equal(t, view.CreatedAt.Unix(), updated.CreatedAt.Unix())
	assert.Contains(t, env.runtime.removed, "old")

	_, ok := env.runtime.Status("old")
	assert.False(t, ok)
	_, ok = env.runtime.Status("new")
	assert.True(t, ok)
}

func TestDelete_RemovesRecordAndRuntime(t *testing.T) {
	env := newTestEnv(t)
	view := env.createPandax(t, "gone", true)

	rr, body := env.do(t, http.MethodDelete, "/api/northbound/"+strconv.FormatInt(view.ID, 10), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, body.Success)
	assert.Equal(t, []string{"gone"}, env.runtime.removed)

	_, err := env.store.GetNorthboundConfigByID(context.Background(), view.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestToggle_FlipsEnabled(t *testing.T) {
	env := newTestEnv(t)
	view := env.createPandax(t, "tog", false)
	path := "/api/northbound/" + strconv.FormatInt(view.ID, 10) + "/toggle"

	rr, body := env.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"enabled":1}`, string(body.Data))

	_, body = env.do(t, http.MethodPost, path, nil)
	assert.JSONEq(t, `{"enabled":0}`, string(body.Data))

	stored, err := env.store.GetNorthboundConfigByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Enabled)
}

func TestReload_FailureReturnsReloadCode(t *testing.T) {
	env := newTestEnv(t)
	view := env.createPandax(t, "rl", true)
	path := "/api/northbound/" + strconv.FormatInt(view.ID, 10) + "/reload"

	rr, _ := env.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"rl"}, env.runtime.reloaded)

	env.runtime.failNext = assert.AnError
	rr, body := env.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeNorthboundReloadFailed, body.Code)
}

func TestSchemaEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, http.MethodGet, "/api/northbound/schema?type=ithings", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Type   string `json:"type"`
		Fields []struct {
			Key string `json:"key"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &payload))
	assert.Equal(t, "ithings", payload.Type)
	assert.NotEmpty(t, payload.Fields)

	rr, body = env.do(t, http.MethodGet, "/api/northbound/schema", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeBadRequest, body.Code)

	rr, body = env.do(t, http.MethodGet, "/api/northbound/schema?type=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeNorthboundTypeUnsupported, body.Code)
}

func TestSupportedTypes(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/northbound/types", nil)
	var types []NorthboundTypeView
	require.NoError(t, json.Unmarshal(body.Data, &types))

	byType := map[string]NorthboundTypeView{}
	for _, v := range types {
		byType[v.Type] = v
	}
	assert.True(t, byType["pandax"].SchemaDriven)
	assert.True(t, byType["sagoo"].SchemaDriven)
	assert.False(t, byType["mqtt"].SchemaDriven)
}

func TestStatus_MergesRecordsWithRuntime(t *testing.T) {
	env := newTestEnv(t)
	env.createPandax(t, "b-on", true)
	env.createPandax(t, "a-off", false)

	_, body := env.do(t, http.MethodGet, "/api/northbound/status", nil)
	var items []models.NorthboundStatus
	require.NoError(t, json.Unmarshal(body.Data, &items))
	require.Len(t, items, 2)

	assert.Equal(t, "a-off", items[0].Name)
	assert.False(t, items[0].Connected)
	assert.Equal(t, "closed", items[0].BreakerState)
	assert.Equal(t, "b-on", items[1].Name)
	assert.True(t, items[1].Connected)
}

func TestSyncGatewayIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rr, body := env.do(t, http.MethodPost, "/api/gateway/northbound/sync-identity", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperrors.CodeGatewayIdentityRequired, body.Code)

	view := env.createPandax(t, "pdx", true)
	rr, _ = env.do(t, http.MethodPost, "/api/northbound", map[string]interface{}{
		"name": "plain", "type": "mqtt", "config": `{"broker":"tcp://h:1883"}`,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, _ = env.do(t, http.MethodPut, "/api/gateway/config", map[string]interface{}{
		"gateway_name": "gw", "product_key": "PK1", "device_key": "DK1",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, body = env.do(t, http.MethodPost, "/api/gateway/northbound/sync-identity", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result models.GatewayIdentitySyncResult
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, []string{"pdx"}, result.Names)
	assert.Equal(t, []string{"pdx"}, env.runtime.reloaded)

	stored, err := env.store.GetNorthboundConfigByID(ctx, view.ID)
	require.NoError(t, err)
	cfg, err := nbconfig.ParseJSON(stored.Config)
	require.NoError(t, err)
	assert.Equal(t, "PK1", cfg["productKey"])
	assert.Equal(t, "DK1", cfg["deviceKey"])
	assert.Equal(t, "PK1", stored.ProductKey)

	_, body = env.do(t, http.MethodPost, "/api/gateway/northbound/sync-identity", nil)
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, 0, result.Updated)
}

func TestHealth_ReportsDegradedWhenConnectorDown(t *testing.T) {
	env := newTestEnv(t)

	rr, _ := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "pass", status.Checks["database"].Status)

	env.runtime.statuses["down"] = models.NorthboundStatus{Name: "down", BreakerState: "open"}
	rr, _ = env.do(t, http.MethodGet, "/health", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "0/1 connected", status.Checks["northbound"].Message)
}
