package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

func writeEnvelope(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, Token: "tok", Timeout: 2 * time.Second})
}

func TestClient_SendsBearerAndRequestID(t *testing.T) {
	var gotAuth, gotID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get(RequestIDHeader)
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": []interface{}{}})
	})

	items, err := c.ListConfigs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, "Bearer tok", gotAuth)
	_, err = uuid.Parse(gotID)
	assert.NoError(t, err)
}

func TestClient_EnvelopeErrorBecomesAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"code":    apperrors.CodeNorthboundConfigInvalid,
			"data":    map[string]string{"username": "设备 Token 为必填项"},
		})
	})

	_, err := c.Create(context.Background(), &models.NorthboundConfig{Name: "x", Type: "pandax"})
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, apperrors.CodeNorthboundConfigInvalid, apiErr.Code)
	assert.Equal(t, "北向配置参数无效", apiErr.Message)
	assert.Equal(t, map[string]interface{}{"username": "设备 Token 为必填项"}, apiErr.Data)
}

func TestClient_ServerMessageWinsOverCodeTable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"code":    apperrors.CodeNorthboundReloadFailed,
			"error":   "北向重载失败: broker down",
		})
	})

	err := c.Reload(context.Background(), 3)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNorthboundReloadFailed))
	assert.Equal(t, "北向重载失败: broker down", apperrors.UserMessage(err, ""))
}

func TestClient_UnauthorizedMapsToCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err := c.ListStatus(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnauthorized))
	assert.Equal(t, "登录已过期，请重新登录", apperrors.UserMessage(err, ""))
}

func TestClient_NonEnvelopeErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusBadGateway)
	})

	err := c.Delete(context.Background(), 1)
	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, apperrors.CodeServerError, apiErr.Code)
}

func TestClient_BareJSONResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"pdx","enabled":true,"connected":true}]`))
	})

	statuses, err := c.ListStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "pdx", statuses[0].Name)
	assert.True(t, statuses[0].Connected)
}

func TestClient_SchemaAndProvider(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("type") {
		case "pandax":
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"type": "pandax",
					"fields": []map[string]interface{}{
						{"key": "serverUrl", "type": "string", "required": true},
					},
				},
			})
		default:
			writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{
				"success": false, "code": apperrors.CodeNorthboundTypeUnsupported,
			})
		}
	})

	fields, err := c.Fields(context.Background(), "pandax")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "serverUrl", fields[0].Key)
	assert.True(t, fields[0].Required)

	_, err = c.Fields(context.Background(), "kafka")
	assert.ErrorIs(t, err, schema.ErrUnsupportedType)
}

func TestClient_ToggleAndSync(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/northbound/7/toggle":
			assert.Equal(t, http.MethodPost, r.Method)
			writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]int{"enabled": 1}})
		case "/api/gateway/northbound/sync-identity":
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"updated": 2, "names": []string{"a", "b"}},
			})
		default:
			http.NotFound(w, r)
		}
	})

	enabled, err := c.Toggle(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, enabled)

	res, err := c.SyncGatewayIdentity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, []string{"a", "b"}, res.Names)

	err = c.Reload(context.Background(), 9)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestJoinStatus(t *testing.T) {
	records := []*models.NorthboundView{
		{NorthboundConfig: models.NorthboundConfig{ID: 1, Name: "a"}},
		{NorthboundConfig: models.NorthboundConfig{ID: 2, Name: "b"}},
	}
	statuses := []models.NorthboundStatus{
		{Name: "b", Connected: true, BreakerState: "closed"},
		{Name: "zzz", Connected: true},
	}

	joined := JoinStatus(records, statuses)
	require.Len(t, joined, 2)
	assert.Nil(t, joined[0].Status)
	require.NotNil(t, joined[1].Status)
	assert.True(t, joined[1].Status.Connected)
	assert.Nil(t, records[1].Status)
}

type flakyLister struct {
	calls atomic.Int32
}

func (f *flakyLister) ListStatus(context.Context) ([]models.NorthboundStatus, error) {
	n := f.calls.Add(1)
	if n%2 == 0 {
		return nil, errors.New("temporary")
	}
	return []models.NorthboundStatus{{Name: "a"}}, nil
}

func TestStatusPoller_SkipsFailedTicksAndStopsOnCancel(t *testing.T) {
	src := &flakyLister{}
	poller := NewStatusPoller(src, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	updates := 0
	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx, func([]models.NorthboundStatus) {
			mu.Lock()
			updates++
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool { return src.calls.Load() >= 4 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, updates, int(src.calls.Load()))
	assert.Greater(t, updates, 0)
}
