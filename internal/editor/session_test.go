package editor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

type fakeBackend struct {
	mu      sync.Mutex
	created []*models.NorthboundConfig
	updated map[int64]*models.NorthboundConfig
	err     error
	gate    chan struct{}
}

func (b *fakeBackend) Create(_ context.Context, rec *models.NorthboundConfig) (*models.NorthboundView, error) {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	cp := *rec
	cp.ID = int64(len(b.created) + 1)
	b.created = append(b.created, &cp)
	return &models.NorthboundView{NorthboundConfig: cp}, nil
}

func (b *fakeBackend) Update(_ context.Context, id int64, rec *models.NorthboundConfig) (*models.NorthboundView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.updated == nil {
		b.updated = map[int64]*models.NorthboundConfig{}
	}
	cp := *rec
	b.updated[id] = &cp
	return &models.NorthboundView{NorthboundConfig: cp}, nil
}

func newSession(t *testing.T, backend Backend, provider schema.Provider, defaultType string) *Session {
	t.Helper()
	return NewSession(Options{
		Backend:         backend,
		Schemas:         provider,
		DefaultType:     defaultType,
		DefaultUploadMs: 5000,
	})
}

func TestOpenCreate_LoadsDefaultSchema(t *testing.T) {
	s := newSession(t, &fakeBackend{}, nil, "pandax")
	require.NoError(t, s.OpenCreate(context.Background()))

	assert.Equal(t, StateCreating, s.State())
	assert.Equal(t, "pandax", s.Type())
	assert.True(t, s.SchemaDriven())

	cfg := s.Config()
	assert.Equal(t, true, cfg["gatewayMode"])
	assert.Equal(t, 5000, cfg[schema.KeyUploadIntervalMs])
	assert.Equal(t, "", cfg["serverUrl"])
	assert.Equal(t, 1, s.Record().Enabled)
}

func TestSubmit_ValidationFailureKeepsSessionOpen(t *testing.T) {
	backend := &fakeBackend{}
	s := newSession(t, backend, nil, "pandax")
	require.NoError(t, s.OpenCreate(context.Background()))
	require.NoError(t, s.Set("serverUrl", "tcp://10.0.0.1:1883"))
	require.NoError(t, s.Set("qos", "abc"))

	_, err := s.Submit(context.Background())
	var fieldErrs nbconfig.FieldErrors
	require.True(t, errors.As(err, &fieldErrs))
	assert.Contains(t, fieldErrs, FieldName)
	assert.Contains(t, fieldErrs, "username")
	assert.Contains(t, fieldErrs, "qos")
	assert.NotContains(t, fieldErrs, "serverUrl")

	assert.Equal(t, StateCreating, s.State())
	assert.Equal(t, fieldErrs, s.Errors())
	assert.Empty(t, backend.created)
}

func TestSubmit_CreateSerializesConfigAndFlatFields(t *testing.T) {
	backend := &fakeBackend{}
	s := newSession(t, backend, nil, "pandax")
	ctx := context.Background()
	require.NoError(t, s.OpenCreate(ctx))
	require.NoError(t, s.SetName(" pdx "))
	require.NoError(t, s.Set("serverUrl", "tcp://10.0.0.1:1883"))
	require.NoError(t, s.Set("username", "token"))
	require.NoError(t, s.Set(schema.KeyUploadIntervalMs, "2000"))
	assert.Equal(t, 2000, s.Record().UploadInterval)

	view, err := s.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, StateClosed, s.State())

	require.Len(t, backend.created, 1)
	rec := backend.created[0]
	assert.Equal(t, "pdx", rec.Name)
	assert.Equal(t, "pandax", rec.Type)
	assert.Equal(t, 2000, rec.UploadInterval)
	assert.Equal(t, "tcp://10.0.0.1:1883", rec.ServerURL)
	assert.Equal(t, "token", rec.Username)

	cfg, err := nbconfig.ParseJSON(rec.Config)
	require.NoError(t, err)
	assert.Equal(t, "token", cfg["username"])
}

func TestSetUploadInterval_LockStep(t *testing.T) {
	s := newSession(t, &fakeBackend{}, nil, "sagoo")
	require.NoError(t, s.OpenCreate(context.Background()))

	require.NoError(t, s.SetUploadInterval(7000))
	assert.Equal(t, 7000, s.Config()[schema.KeyUploadIntervalMs])
	assert.Equal(t, 7000, s.Record().UploadInterval)
	assert.Error(t, s.SetUploadInterval(0))
}

func TestOpenEdit_SchemaDrivenMergesLegacyColumns(t *testing.T) {
	backend := &fakeBackend{}
	s := newSession(t, backend, nil, "pandax")
	ctx := context.Background()

	rec := &models.NorthboundConfig{
		ID:             4,
		Name:           "legacy",
		Type:           "xunji",
		Enabled:        1,
		UploadInterval: 3000,
		Config:         `{"productKey":"pk","deviceKey":"dk"}`,
		ServerURL:      "tcp://old:1883",
	}
	require.NoError(t, s.OpenEdit(ctx, rec))
	assert.Equal(t, StateEditing, s.State())
	assert.Equal(t, "sagoo", s.Type())

	cfg := s.Config()
	assert.Equal(t, "tcp://old:1883", cfg["serverUrl"])
	assert.Equal(t, 3000, cfg[schema.KeyUploadIntervalMs])

	_, err := s.Submit(ctx)
	require.NoError(t, err)
	require.Contains(t, backend.updated, int64(4))
	assert.Equal(t, "sagoo", backend.updated[4].Type)
}

func TestOpenEdit_FlatColumnsFollowEditedConfig(t *testing.T) {
	backend := &fakeBackend{}
	s := newSession(t, backend, nil, "pandax")
	ctx := context.Background()

	rec := &models.NorthboundConfig{
		ID:             9,
		Name:           "pdx",
		Type:           "pandax",
		Enabled:        1,
		UploadInterval: 5000,
		Config:         `{"serverUrl":"tcp://old:1883","username":"old-token"}`,
		ServerURL:      "tcp://old:1883",
		Username:       "old-token",
	}
	require.NoError(t, s.OpenEdit(ctx, rec))
	require.NoError(t, s.Set("serverUrl", "tcp://new:1883"))
	require.NoError(t, s.Set("username", "new-token"))

	_, err := s.Submit(ctx)
	require.NoError(t, err)
	got := backend.updated[9]
	require.NotNil(t, got)
	assert.Equal(t, "tcp://new:1883", got.ServerURL)
	assert.Equal(t, "new-token", got.Username)
	assert.Equal(t, "tcp://new:1883", nbconfig.ServerAddress(got))
}

func TestSet_InvalidInputBlocksSubmit(t *testing.T) {
	backend := &fakeBackend{}
	s := newSession(t, backend, nil, "pandax")
	ctx := context.Background()
	require.NoError(t, s.OpenCreate(ctx))
	require.NoError(t, s.SetName("pdx"))
	require.NoError(t, s.Set("serverUrl", "tcp://10.0.0.1:1883"))
	require.NoError(t, s.Set("username", "token"))
	before := s.Config()

	require.NoError(t, s.Set("keepAlive", "abc"))
	require.NoError(t, s.Set("retain", "maybe"))
	assert.Equal(t, before["keepAlive"], s.Config()["keepAlive"])
	assert.Equal(t, before["retain"], s.Config()["retain"])

	_, err := s.Submit(ctx)
	var fieldErrs nbconfig.FieldErrors
	require.True(t, errors.As(err, &fieldErrs))
	assert.Contains(t, fieldErrs, "keepAlive")
	assert.Contains(t, fieldErrs, "retain")
	assert.Empty(t, backend.created)

	require.NoError(t, s.Set("keepAlive", "30"))
	require.NoError(t, s.Set("retain", "true"))
	_, err = s.Submit(ctx)
	require.NoError(t, err)
	require.Len(t, backend.created, 1)

	cfg, err := nbconfig.ParseJSON(backend.created[0].Config)
	require.NoError(t, err)
	assert.EqualValues(t, 30, cfg["keepAlive"])
	assert.Equal(t, true, cfg["retain"])
}

func TestOpenEdit_FreeFormKeepsTextVerbatim(t *testing.T) {
	backend := &fakeBackend{}
	s := newSession(t, backend, nil, "pandax")
	ctx := context.Background()

	text := `{"broker": "tcp://h:1883", "custom": [1, 2]}`
	require.NoError(t, s.OpenEdit(ctx, &models.NorthboundConfig{ID: 2, Name: "m", Type: "mqtt", Config: text}))
	assert.False(t, s.SchemaDriven())
	assert.Equal(t, text, s.ConfigText())
	assert.ErrorIs(t, s.Set("broker", "x"), ErrFreeFormType)

	require.NoError(t, s.SetConfigText("{broken"))
	_, err := s.Submit(ctx)
	assert.ErrorIs(t, err, nbconfig.ErrInvalidJSON)
	assert.Contains(t, s.Errors(), FieldConfig)
	assert.Equal(t, StateEditing, s.State())

	require.NoError(t, s.SetConfigText(text))
	_, err = s.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, text, backend.updated[2].Config)
}

func TestSwitchType_DropsStaleKeysAndClearsErrors(t *testing.T) {
	s := newSession(t, &fakeBackend{}, nil, "pandax")
	ctx := context.Background()
	require.NoError(t, s.OpenCreate(ctx))
	require.NoError(t, s.Set("serverUrl", "tcp://10.0.0.1:1883"))
	require.NoError(t, s.Set("subDeviceTokenMode", "deviceKey"))

	_, err := s.Submit(ctx)
	require.Error(t, err)
	require.NotEmpty(t, s.Errors())

	require.NoError(t, s.SwitchType(ctx, "sagoo"))
	assert.Empty(t, s.Errors())

	cfg := s.Config()
	assert.NotContains(t, cfg, "subDeviceTokenMode")
	assert.NotContains(t, cfg, "gatewayMode")
	assert.Equal(t, "tcp://10.0.0.1:1883", cfg["serverUrl"])
	assert.Contains(t, cfg, "productKey")
	assert.Equal(t, schema.Keys(schema.SagooConfigSchema), sortedLike(cfg, schema.SagooConfigSchema))
}

func sortedLike(cfg nbconfig.Config, fields []schema.Field) []string {
	keys := make([]string, 0, len(cfg))
	for _, f := range fields {
		if _, ok := cfg[f.Key]; ok {
			keys = append(keys, f.Key)
		}
	}
	if len(keys) != len(cfg) {
		return nil
	}
	return keys
}

func TestSwitchType_ToFreeFormRewritesText(t *testing.T) {
	s := newSession(t, &fakeBackend{}, nil, "sagoo")
	ctx := context.Background()
	require.NoError(t, s.OpenCreate(ctx))
	require.NoError(t, s.Set("serverUrl", "tcp://a:1883"))

	require.NoError(t, s.SwitchType(ctx, "mqtt"))
	parsed, err := nbconfig.ParseJSON(s.ConfigText())
	require.NoError(t, err)
	assert.Equal(t, "tcp://a:1883", parsed["serverUrl"])

	assert.ErrorIs(t, s.SwitchType(ctx, "kafka"), schema.ErrUnsupportedType)
}

// gatedProvider blocks loads of one type until released.
type gatedProvider struct {
	blockType string
	release   chan struct{}
	calls     atomic.Int32
	fail      atomic.Bool
}

func (p *gatedProvider) Fields(ctx context.Context, nbType string) ([]schema.Field, error) {
	p.calls.Add(1)
	if nbType == p.blockType {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.fail.Load() {
		return nil, errors.New("schema endpoint down")
	}
	fields, ok := schema.FieldsByType(nbType)
	if !ok {
		return nil, schema.ErrUnsupportedType
	}
	return fields, nil
}

func TestSwitchType_StaleSchemaResponseDiscarded(t *testing.T) {
	provider := &gatedProvider{blockType: "pandax", release: make(chan struct{})}
	s := newSession(t, &fakeBackend{}, provider, "mqtt")
	ctx := context.Background()
	require.NoError(t, s.OpenCreate(ctx))

	slow := make(chan error, 1)
	go func() { slow <- s.SwitchType(ctx, "pandax") }()
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.SwitchType(ctx, "ithings"))
	close(provider.release)

	select {
	case err := <-slow:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("slow schema load did not return")
	}

	assert.Equal(t, "ithings", s.Type())
	cfg := s.Config()
	assert.Contains(t, cfg, "upPropertyTopicTemplate")
	assert.NotContains(t, cfg, "subDeviceTokenMode")
}

func TestSchemaFailure_DegradedThenRetry(t *testing.T) {
	provider := &gatedProvider{}
	provider.fail.Store(true)
	s := newSession(t, &fakeBackend{}, provider, "pandax")
	ctx := context.Background()

	err := s.OpenCreate(ctx)
	require.Error(t, err)
	assert.Equal(t, StateCreating, s.State())
	assert.Error(t, s.SchemaError())
	assert.ErrorIs(t, s.Set("serverUrl", "x"), ErrSchemaUnavailable)

	require.NoError(t, s.SetName("n"))
	_, err = s.Submit(ctx)
	assert.ErrorIs(t, err, ErrSchemaUnavailable)

	provider.fail.Store(false)
	require.NoError(t, s.RetrySchema(ctx))
	assert.NoError(t, s.SchemaError())
	assert.NotEmpty(t, s.Fields())
}

func TestSubmit_BusyGuardAndBackendError(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	s := newSession(t, backend, nil, "mqtt")
	ctx := context.Background()
	require.NoError(t, s.OpenCreate(ctx))
	require.NoError(t, s.SetName("m"))
	require.NoError(t, s.SetConfigText(`{"broker":"tcp://h:1883"}`))

	first := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx)
		first <- err
	}()
	require.Eventually(t, s.Busy, time.Second, time.Millisecond)

	_, err := s.Submit(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StateSubmitting, s.State())

	backend.mu.Lock()
	backend.err = errors.New("E_NORTHBOUND_NAME_EXISTS")
	backend.mu.Unlock()
	close(backend.gate)

	select {
	case err := <-first:
		assert.EqualError(t, err, "E_NORTHBOUND_NAME_EXISTS")
	case <-time.After(time.Second):
		t.Fatal("submit did not return")
	}
	assert.False(t, s.Busy())
	assert.Equal(t, StateCreating, s.State())
}

func TestClosedSessionRejectsEdits(t *testing.T) {
	s := newSession(t, &fakeBackend{}, nil, "pandax")
	assert.ErrorIs(t, s.Set("serverUrl", "x"), ErrNotOpen)
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, s.OpenCreate(context.Background()))
	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.SwitchType(context.Background(), "sagoo"), ErrNotOpen)
}
