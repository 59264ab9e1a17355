package handlers

import (
	"context"

	"github.com/gonglijing/nbconsole/internal/database"
	"github.com/gonglijing/nbconsole/internal/logger"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// Runtime 北向运行时（由 runtime.Manager 实现）
type Runtime interface {
	Apply(ctx context.Context, rec *models.NorthboundConfig) error
	Reload(ctx context.Context, rec *models.NorthboundConfig) error
	Remove(name string)
	Status(name string) (models.NorthboundStatus, bool)
	Statuses() []models.NorthboundStatus
}

// Options 处理器依赖
type Options struct {
	Store           *database.Store
	Runtime         Runtime
	Schemas         schema.Provider
	Registry        *nbtype.Registry
	Health          *database.HealthChecker
	Logger          *logger.Logger
	DefaultUploadMs int
}

// Handler Web处理器
type Handler struct {
	store           *database.Store
	runtime         Runtime
	schemas         schema.Provider
	registry        *nbtype.Registry
	health          *database.HealthChecker
	log             *logger.Logger
	defaultUploadMs int
}

// NewHandler 创建处理器
func NewHandler(opts Options) *Handler {
	if opts.Registry == nil {
		opts.Registry = nbtype.Default()
	}
	if opts.Schemas == nil {
		opts.Schemas = schema.NewCache(schema.NewBuiltin(), opts.Registry.Normalize)
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Runtime == nil {
		opts.Runtime = noopRuntime{}
	}
	if opts.DefaultUploadMs <= 0 {
		opts.DefaultUploadMs = 5000
	}
	return &Handler{
		store:           opts.Store,
		runtime:         opts.Runtime,
		schemas:         opts.Schemas,
		registry:        opts.Registry,
		health:          opts.Health,
		log:             opts.Logger.WithModule("handlers"),
		defaultUploadMs: opts.DefaultUploadMs,
	}
}
