package database

import (
	"context"
	"sync"
	"time"

	"github.com/gonglijing/nbconsole/internal/logger"
)

// HealthChecker 数据库连接健康检查器
type HealthChecker struct {
	store    *Store
	interval time.Duration

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
	lastErr   string

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store *Store, interval time.Duration) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthChecker{
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 启动健康检查
func (c *HealthChecker) Start() {
	// 立即检查一次
	c.Check(context.Background())

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.Check(context.Background())
			}
		}
	}()

	logger.Info("Database health checker started", "interval", c.interval.String())
}

// Stop 停止健康检查
func (c *HealthChecker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		logger.Info("Database health checker stopped")
	})
}

// Check 执行一次健康检查
func (c *HealthChecker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := c.store.Ping(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCheck = time.Now()
	if err != nil {
		logger.Warn("Database health check failed", "error", err.Error())
		c.healthy = false
		c.lastErr = err.Error()
		return false
	}
	c.healthy = true
	c.lastErr = ""
	return true
}

// IsHealthy 获取整体健康状态
func (c *HealthChecker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// GetStatus 获取详细状态
func (c *HealthChecker) GetStatus() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := map[string]interface{}{
		"healthy":    c.healthy,
		"path":       c.store.Path(),
		"last_check": c.lastCheck,
	}
	if c.lastErr != "" {
		status["error"] = c.lastErr
	}
	return status
}
