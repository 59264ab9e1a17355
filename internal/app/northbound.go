package app

import (
	"context"
	"fmt"

	"github.com/gonglijing/nbconsole/internal/config"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
	"github.com/gonglijing/nbconsole/internal/northbound/runtime"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// buildSchemas 按配置生成类型注册表与带缓存的 schema 来源
func buildSchemas(cfg *config.Config) (*nbtype.Registry, *schema.Cache, error) {
	var opts []nbtype.Option
	if types := cfg.SchemaDrivenTypes(); len(types) > 0 {
		opts = append(opts, nbtype.WithSchemaDriven(types...))
	}
	registry := nbtype.New(opts...)

	builtin, err := schema.LoadBuiltinFile(cfg.NorthboundSchemaFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load northbound schema: %w", err)
	}
	return registry, schema.NewCache(builtin, registry.Normalize), nil
}

func (a *App) newRuntime() *runtime.Manager {
	return runtime.NewManager(runtime.Options{
		Registry:          a.registry,
		Schemas:           a.schemas,
		Logger:            a.log,
		Metrics:           runtime.NewMetrics(a.metrics),
		DefaultUploadMs:   a.cfg.NorthboundDefaultUploadMs,
		ConnectTimeout:    a.cfg.NorthboundMQTTConnectTimeout,
		ReconnectInterval: a.cfg.NorthboundMQTTReconnectInterval,
		ConnectDisabled:   !a.cfg.NorthboundRuntimeEnabled,
	})
}

func (a *App) loadEnabledNorthboundConfigs(ctx context.Context) {
	a.log.Info("Loading enabled northbound configs...")
	records, err := a.store.GetEnabledNorthboundConfigs(ctx)
	if err != nil {
		a.log.Warn("Failed to load northbound configs", "error", err)
		return
	}
	a.runtime.LoadAll(ctx, records)
	a.log.Info("Loaded enabled northbound configs", "count", len(records))
}
