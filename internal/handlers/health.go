package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gonglijing/nbconsole/internal/models"
)

// HealthStatus 健康检查状态
type HealthStatus struct {
	Status    string           `json:"status"` // healthy, degraded, unhealthy
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
	System    SystemInfo       `json:"system"`
}

// Check 单个检查项
type Check struct {
	Status  string `json:"status"` // pass, fail
	Message string `json:"message,omitempty"`
}

// SystemInfo 系统信息
type SystemInfo struct {
	GoVersion  string  `json:"go_version"`
	Goroutines int     `json:"goroutines"`
	MemoryMB   float64 `json:"memory_mb"`
}

var startTime = time.Now()

// Health 健康检查接口。数据库不可用返回 503，北向未全部连上只标记 degraded。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).Truncate(time.Second).String(),
		Checks:    make(map[string]Check),
		System: SystemInfo{
			GoVersion:  runtime.Version(),
			Goroutines: runtime.NumGoroutine(),
		},
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	status.System.MemoryMB = float64(m.Alloc) / 1024 / 1024

	if h.databaseHealthy(r.Context()) {
		status.Checks["database"] = Check{Status: "pass", Message: "Connected"}
	} else {
		status.Checks["database"] = Check{Status: "fail", Message: "database unreachable"}
		status.Status = "unhealthy"
	}

	statuses := h.runtime.Statuses()
	connected := 0
	for _, st := range statuses {
		if st.Connected {
			connected++
		}
	}
	northbound := Check{Status: "pass", Message: northboundSummary(connected, len(statuses))}
	if connected < len(statuses) {
		northbound.Status = "fail"
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}
	status.Checks["northbound"] = northbound

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *Handler) databaseHealthy(ctx context.Context) bool {
	if h.health != nil {
		return h.health.Check(ctx)
	}
	if h.store == nil {
		return false
	}
	return h.store.Ping(ctx) == nil
}

func northboundSummary(connected, total int) string {
	return fmt.Sprintf("%d/%d connected", connected, total)
}

// noopRuntime 未启用运行时时使用
type noopRuntime struct{}

func (noopRuntime) Apply(context.Context, *models.NorthboundConfig) error  { return nil }
func (noopRuntime) Reload(context.Context, *models.NorthboundConfig) error { return nil }
func (noopRuntime) Remove(string)                                          {}
func (noopRuntime) Status(name string) (models.NorthboundStatus, bool) {
	return models.NorthboundStatus{}, false
}
func (noopRuntime) Statuses() []models.NorthboundStatus { return nil }
