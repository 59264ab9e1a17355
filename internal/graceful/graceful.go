package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gonglijing/nbconsole/internal/logger"
)

// ShutdownFunc 关闭函数类型
type ShutdownFunc func(ctx context.Context) error

type namedFunc struct {
	name string
	fn   ShutdownFunc
}

// Shutdown 优雅关闭管理器。HTTP 服务器先关闭，其余函数按注册顺序执行。
type Shutdown struct {
	timeout    time.Duration
	log        *logger.Logger
	httpServer *http.Server

	mu    sync.Mutex
	funcs []namedFunc

	once sync.Once
	done chan struct{}
}

// New 创建优雅关闭管理器
func New(timeout time.Duration, log *logger.Logger) *Shutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Shutdown{
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Add 添加关闭函数
func (g *Shutdown) Add(name string, fn ShutdownFunc) {
	g.mu.Lock()
	g.funcs = append(g.funcs, namedFunc{name: name, fn: fn})
	g.mu.Unlock()
}

// SetHTTPServer 设置HTTP服务器
func (g *Shutdown) SetHTTPServer(srv *http.Server) {
	g.httpServer = srv
}

// Watch 监听 SIGINT/SIGTERM 或 ctx 取消，触发关闭
func (g *Shutdown) Watch(ctx context.Context) {
	notify := make(chan os.Signal, 1)
	signal.Notify(notify, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(notify)
		select {
		case sig := <-notify:
			g.log.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			g.log.Info("Context cancelled, shutting down")
		case <-g.done:
			return
		}
		g.Shutdown()
	}()
}

// Shutdown 执行关闭，多次调用只生效一次
func (g *Shutdown) Shutdown() {
	g.once.Do(func() {
		defer close(g.done)

		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		if g.httpServer != nil {
			g.log.Info("Shutting down HTTP server")
			if err := g.httpServer.Shutdown(ctx); err != nil {
				g.log.Error("HTTP server shutdown error", err)
			}
		}

		g.mu.Lock()
		funcs := append([]namedFunc(nil), g.funcs...)
		g.mu.Unlock()

		for _, f := range funcs {
			g.log.Debug("Executing shutdown function", "name", f.name)
			if err := f.fn(ctx); err != nil {
				g.log.Error("Shutdown function failed", err, "name", f.name)
			}
		}

		g.log.Info("Graceful shutdown completed")
	})
}

// Done 关闭完成后关闭的通道
func (g *Shutdown) Done() <-chan struct{} {
	return g.done
}

// Wait 等待关闭完成
func (g *Shutdown) Wait() {
	<-g.done
}
