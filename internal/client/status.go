package client

import (
	"context"
	"strings"
	"time"

	"github.com/gonglijing/nbconsole/internal/logger"
	"github.com/gonglijing/nbconsole/internal/models"
)

// JoinStatus 按名称把运行态快照挂到配置记录上，找不到快照的记录 Status 为 nil。
func JoinStatus(records []*models.NorthboundView, statuses []models.NorthboundStatus) []*models.NorthboundView {
	byName := make(map[string]models.NorthboundStatus, len(statuses))
	for _, st := range statuses {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			continue
		}
		byName[name] = st
	}

	out := make([]*models.NorthboundView, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		view := *rec
		view.Status = nil
		if st, ok := byName[strings.TrimSpace(rec.Name)]; ok {
			st := st
			view.Status = &st
		}
		out = append(out, &view)
	}
	return out
}

// StatusLister 运行态来源
type StatusLister interface {
	ListStatus(ctx context.Context) ([]models.NorthboundStatus, error)
}

// StatusPoller 固定周期拉取 /api/northbound/status
type StatusPoller struct {
	source   StatusLister
	interval time.Duration
	log      *logger.Logger
}

// DefaultPollInterval 默认轮询周期
const DefaultPollInterval = 5 * time.Second

// NewStatusPoller 创建轮询器
func NewStatusPoller(source StatusLister, interval time.Duration, log *logger.Logger) *StatusPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &StatusPoller{source: source, interval: interval, log: log.WithModule("status-poller")}
}

// Run 立即拉取一次，之后每个周期拉取一次并回调 onUpdate。
// 单次失败只记录 debug 日志并跳过，ctx 取消后返回 ctx.Err()。
func (p *StatusPoller) Run(ctx context.Context, onUpdate func([]models.NorthboundStatus)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx, onUpdate)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *StatusPoller) tick(ctx context.Context, onUpdate func([]models.NorthboundStatus)) {
	statuses, err := p.source.ListStatus(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Debug("Status poll failed", "error", err.Error())
		}
		return
	}
	if onUpdate != nil {
		onUpdate(statuses)
	}
}
