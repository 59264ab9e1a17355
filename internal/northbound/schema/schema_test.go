package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsByTypeSupported(t *testing.T) {
	for _, tp := range []string{"mqtt", "pandax", "ithings", "sagoo", "xunji", " SAGOO "} {
		fields, ok := FieldsByType(tp)
		require.True(t, ok, "expected %s schema supported", tp)
		assert.NotEmpty(t, fields)
	}
	_, ok := FieldsByType("http")
	assert.False(t, ok)
}

func TestLegacyXunJiSharesSagooSchema(t *testing.T) {
	sagoo, _ := FieldsByType("sagoo")
	xunji, _ := FieldsByType("xunji")
	assert.Equal(t, sagoo, xunji)
}

func TestCloneFieldsImmutability(t *testing.T) {
	originKey := SagooConfigSchema[0].Key
	clone, _ := FieldsByType("sagoo")
	clone[0].Key = "modified"

	assert.Equal(t, originKey, SagooConfigSchema[0].Key, "schema source should not be mutated by returned slice")
}

func TestSchemaKeysUnique(t *testing.T) {
	for _, tp := range SupportedTypes() {
		fields, _ := FieldsByType(tp)
		require.NoError(t, checkFields(fields), tp)
	}
}

func TestPandaXConfigSchemaFields(t *testing.T) {
	fields, ok := FieldsByType("pandax")
	require.True(t, ok)

	for _, key := range []string{"serverUrl", "username", "password", KeyQOS, KeyGatewayMode, KeyUploadIntervalMs, KeyAlarmBatchSize} {
		assert.True(t, Has(fields, key), "pandax schema missing %s", key)
	}

	serverURL, _ := Lookup(fields, "serverUrl")
	assert.True(t, serverURL.Required)
	assert.Equal(t, FieldTypeString, serverURL.Type)
}

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "broker", Field{Key: "broker"}.DisplayLabel())
	assert.Equal(t, "Broker 地址", Field{Key: "broker", Label: " Broker 地址 "}.DisplayLabel())
}

func TestBuiltinOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schemas.yaml")
	content := `
schemas:
  thingspanel:
    - key: serverUrl
      label: 地址
      type: string
      required: true
    - key: qos
      type: int
      default: 1
  mqtt:
    - key: broker
      type: string
      required: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := LoadBuiltinFile(path)
	require.NoError(t, err)

	fields, err := b.Fields(context.Background(), "ThingsPanel")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, 1, fields[1].Default)

	mqttFields, err := b.Fields(context.Background(), "mqtt")
	require.NoError(t, err)
	assert.Len(t, mqttFields, 1)

	pandax, err := b.Fields(context.Background(), "pandax")
	require.NoError(t, err)
	assert.Equal(t, len(PandaXConfigSchema), len(pandax))

	_, err = b.Fields(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestBuiltinOverlayRejectsBadFields(t *testing.T) {
	b := NewBuiltin()
	err := b.Overlay([]byte("schemas:\n  demo:\n    - key: a\n      type: float\n"))
	require.Error(t, err)

	err = b.Overlay([]byte("schemas:\n  demo:\n    - key: a\n      type: int\n    - key: a\n      type: int\n"))
	require.Error(t, err)
}

func TestCacheLoadsOnceAndNeverCachesFailures(t *testing.T) {
	var calls int32
	fail := true
	provider := ProviderFunc(func(_ context.Context, nbType string) ([]Field, error) {
		atomic.AddInt32(&calls, 1)
		if fail {
			return nil, errors.New("boom")
		}
		return mustFields(nbType), nil
	})
	cache := NewCache(provider, nil)

	_, err := cache.Fields(context.Background(), "pandax")
	require.Error(t, err)
	_, ok := cache.Cached("pandax")
	assert.False(t, ok)

	fail = false
	fields, err := cache.Fields(context.Background(), " PandaX ")
	require.NoError(t, err)
	assert.NotEmpty(t, fields)

	_, err = cache.Fields(context.Background(), "pandax")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	cache.Invalidate("pandax")
	_, ok = cache.Cached("pandax")
	assert.False(t, ok)
}

func TestCacheRejectsEmptySchema(t *testing.T) {
	cache := NewCache(ProviderFunc(func(context.Context, string) ([]Field, error) {
		return []Field{}, nil
	}), nil)

	_, err := cache.Fields(context.Background(), "sagoo")
	assert.ErrorIs(t, err, ErrEmptySchema)
}

func mustFields(nbType string) []Field {
	fields, _ := FieldsByType(nbType)
	return fields
}
