package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fleetconsole/pkg/availability"
	"fleetconsole/pkg/backend"
	"fleetconsole/pkg/dispatch"
	"fleetconsole/pkg/models"
	"fleetconsole/pkg/snapshot"
	"fleetconsole/pkg/telemetry"
	"fleetconsole/pkg/view"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	invoked []string
	result  map[string]any
}

func (f *fakeBackend) FetchDevice(_ context.Context, id int64) (*models.Device, error) {
	switch id {
	case 1:
		return &models.Device{ID: 1, Name: "nas", Type: models.DeviceTypeCustom, Custom: &models.CustomDevice{
			PluginID:         7,
			ConnectionParams: map[string]any{"host": "10.0.0.5"},
		}}, nil
	case 2:
		return &models.Device{ID: 2, Name: "pc", Type: models.DeviceTypeStandard, Standard: &models.StandardDevice{OSType: "linux", Hostname: "pc"}}, nil
	}
	return nil, &backend.StatusError{Method: http.MethodGet, Path: fmt.Sprintf("/devices/%d", id), StatusCode: http.StatusNotFound, Message: "Device not found"}
}

func (f *fakeBackend) FetchPlugin(_ context.Context, id int64) (*models.Plugin, error) {
	if id != 7 {
		return nil, &backend.StatusError{StatusCode: http.StatusNotFound, Message: "Plugin not found"}
	}
	return &models.Plugin{
		ID:   7,
		Name: "NAS",
		Code: "def get_operations():\n    return [{'id': 'scrub', 'name': 'Scrub', 'params': ['pool']}, {'id': 'wipe', 'confirm': True}]\n",
	}, nil
}

func (f *fakeBackend) Get(_ context.Context, _ int64, kind snapshot.Kind) (models.Snapshot, error) {
	if kind == snapshot.KindMetrics {
		return models.ParseSnapshot([]byte(`{"cpu": 45, "status": "Online", "errorCount": 1200}`))
	}
	return models.ParseSnapshot([]byte(`{"hostname": "nas"}`))
}

func (f *fakeBackend) InvokeOperation(_ context.Context, _ int64, operationID string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, operationID)
	return f.result, nil
}

func (f *fakeBackend) CheckAvailability(context.Context, int64) (bool, error) {
	return true, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := &fakeBackend{result: map[string]any{"output": "done"}}
	composer := view.NewComposer(fake, fake, fake, telemetry.NewClassifier(nil), nil)
	dispatcher := dispatch.NewDispatcher(fake, fake, nil, nil, time.Minute)
	sessions := availability.NewSessions(context.Background(), fake, time.Hour, 0, availability.Options{})
	t.Cleanup(sessions.CloseAll)

	return NewRouter(NewHandler(fake, fake, composer, dispatcher, sessions, nil)), fake
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestDeviceView(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/api/v1/devices/1/view", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	headline := body["headline"].([]any)
	require.Len(t, headline, 3)
	assert.Equal(t, "1.17 KB", headline[2].(map[string]any)["display"])
	assert.Len(t, body["operations"].([]any), 2)

	rec = do(router, http.MethodGet, "/api/v1/devices/99/view", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, float64(http.StatusNotFound), decode(t, rec)["error"].(map[string]any)["status"])

	rec = do(router, http.MethodGet, "/api/v1/devices/abc/view", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPluginOperations(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/api/v1/plugins/7/operations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	operations := decode(t, rec)["operations"].([]any)
	require.Len(t, operations, 2)
	first := operations[0].(map[string]any)
	assert.Equal(t, "scrub", first["id"])
	assert.Equal(t, []any{"pool"}, first["params"])
}

func TestExecuteOperation(t *testing.T) {
	router, fake := newTestRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/devices/1/operations/scrub", `{"params": {"pool": "tank"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	display := decode(t, rec)["display"].(map[string]any)
	assert.Equal(t, "scrub", display["title"])
	assert.Equal(t, "done", display["body"])

	rec = do(router, http.MethodPost, "/api/v1/devices/2/operations/scrub", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/devices/1/operations/scrub", `{"params": [}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []string{"scrub"}, fake.invoked)
}

func TestExecuteOperationFailure(t *testing.T) {
	router, fake := newTestRouter(t)
	fake.result = map[string]any{"error": "disk busy"}

	rec := do(router, http.MethodPost, "/api/v1/devices/1/operations/scrub", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["error"].(map[string]any)["message"], "disk busy")
}

func TestConfirmationFlow(t *testing.T) {
	router, fake := newTestRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/devices/1/operations/wipe", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	token := decode(t, rec)["pending_token"].(string)
	assert.Empty(t, fake.invoked)

	rec = do(router, http.MethodPost, "/api/v1/confirmations/"+token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"wipe"}, fake.invoked)

	rec = do(router, http.MethodPost, "/api/v1/confirmations/"+token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/devices/1/operations/scrub", `{"confirm": true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	token = decode(t, rec)["pending_token"].(string)

	rec = do(router, http.MethodDelete, "/api/v1/confirmations/"+token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"wipe"}, fake.invoked)
}

func TestSessions(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	sid := decode(t, rec)["session_id"].(string)
	base := "/api/v1/sessions/" + sid + "/devices/1"

	rec = do(router, http.MethodGet, base+"/availability", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodPut, base, "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		rec := do(router, http.MethodGet, base+"/availability", "")
		var state models.AvailabilityState
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &state) != nil {
			return false
		}
		return state.Status == models.AvailabilityAvailable
	}, time.Second, 5*time.Millisecond)

	rec = do(router, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(router, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodDelete, "/api/v1/sessions/"+sid, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(router, http.MethodPut, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecutionsWithoutHistory(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/api/v1/devices/1/executions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
