package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gonglijing/nbconsole/internal/auth"
	"github.com/gonglijing/nbconsole/internal/config"
	"github.com/gonglijing/nbconsole/internal/database"
	"github.com/gonglijing/nbconsole/internal/graceful"
	"github.com/gonglijing/nbconsole/internal/handlers"
	"github.com/gonglijing/nbconsole/internal/logger"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
	"github.com/gonglijing/nbconsole/internal/northbound/runtime"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// App 网关北向配置服务：存储、运行时、HTTP 路由
type App struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *database.Store
	health   *database.HealthChecker
	registry *nbtype.Registry
	schemas  *schema.Cache
	metrics  *prometheus.Registry
	httpMet  *httpMetrics
	runtime  *runtime.Manager
	auth     *auth.JWTManager
	handler  *handlers.Handler
}

// New 按配置组装服务，不启动监听
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	store, health, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	registry, schemas, err := buildSchemas(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		health:   health,
		registry: registry,
		schemas:  schemas,
		metrics:  reg,
		httpMet:  newHTTPMetrics(reg),
	}
	a.runtime = a.newRuntime()
	if cfg.JWTSecret != "" {
		a.auth = auth.NewJWTManager([]byte(cfg.JWTSecret))
	} else {
		log.Warn("JWT secret not configured, API authentication disabled")
	}
	a.handler = handlers.NewHandler(handlers.Options{
		Store:           store,
		Runtime:         a.runtime,
		Schemas:         schemas,
		Registry:        registry,
		Health:          health,
		Logger:          log,
		DefaultUploadMs: cfg.NorthboundDefaultUploadMs,
	})
	return a, nil
}

// Start 启动后台任务并加载已启用的北向配置
func (a *App) Start(ctx context.Context) {
	a.health.Start()
	a.loadEnabledNorthboundConfigs(ctx)
}

// Handler 返回完整的 HTTP 处理链
func (a *App) Handler() http.Handler {
	return buildHandlerChain(a.cfg, a.log, a.httpMet, buildRouter(a))
}

// Close 释放运行时与存储
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.runtime.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close northbound runtime: %w", err))
	}
	a.health.Stop()
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

// Run 启动服务并阻塞直到优雅关闭完成
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := New(cfg, log)
	if err != nil {
		return err
	}
	cfg = a.cfg

	a.Start(ctx)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      a.Handler(),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	shutdown := graceful.New(cfg.ShutdownTimeout, a.log.WithModule("graceful"))
	shutdown.SetHTTPServer(server)
	shutdown.Add("app", a.Close)
	shutdown.Watch(ctx)

	if err := listenAndServe(server, cfg, a.log); err != nil && !errors.Is(err, http.ErrServerClosed) {
		shutdown.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	shutdown.Wait()
	return nil
}
