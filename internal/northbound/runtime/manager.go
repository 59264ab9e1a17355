// Package runtime 北向连接器运行时：为启用的配置建立 MQTT 连接，维护连接状态与熔断器快照。
package runtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gonglijing/nbconsole/internal/circuit"
	"github.com/gonglijing/nbconsole/internal/logger"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// Options 运行时配置
type Options struct {
	Registry          *nbtype.Registry
	Schemas           schema.Provider
	Dial              DialFunc
	Logger            *logger.Logger
	Metrics           *Metrics
	Breaker           circuit.Config
	DefaultUploadMs   int
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	// ConnectDisabled 只登记条目不建立连接
	ConnectDisabled bool
}

// Manager 北向运行时管理器，按配置名称索引
type Manager struct {
	opts     Options
	registry *nbtype.Registry
	schemas  schema.Provider
	log      *logger.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

type entry struct {
	name           string
	nbType         string
	uploadInterval int
	client         Client
	breaker        *circuit.Breaker
	cancel         context.CancelFunc
	connected      bool
	lastErr        string
}

// NewManager 创建运行时管理器
func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = nbtype.Default()
	}
	if opts.Dial == nil {
		opts.Dial = NewPahoClient
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.DefaultUploadMs <= 0 {
		opts.DefaultUploadMs = 5000
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	return &Manager{
		opts:     opts,
		registry: opts.Registry,
		schemas:  opts.Schemas,
		log:      opts.Logger.WithModule("northbound-runtime"),
		entries:  make(map[string]*entry),
	}
}

// LoadAll 启动时加载所有启用的配置，单条失败只记录日志
func (m *Manager) LoadAll(ctx context.Context, records []*models.NorthboundConfig) {
	for _, rec := range records {
		if err := m.Apply(ctx, rec); err != nil {
			m.log.Warn("Failed to register northbound", "name", rec.Name, "error", err.Error())
		}
	}
}

// Apply 按记录注册或注销连接器。禁用的记录会被移除；启用的记录重建条目并异步连接，不阻塞调用方。
func (m *Manager) Apply(ctx context.Context, rec *models.NorthboundConfig) error {
	if rec == nil {
		return nil
	}
	if !rec.IsEnabled() {
		m.Remove(rec.Name)
		return nil
	}

	resolved, err := m.resolve(ctx, rec)
	if err != nil {
		m.setFailed(rec, err)
		return err
	}

	e := &entry{
		name:           rec.Name,
		nbType:         m.registry.Normalize(rec.Type),
		uploadInterval: resolved.uploadInterval,
	}
	opts := resolved.options
	var (
		client     Client
		cancel     context.CancelFunc
		connectCtx context.Context
	)
	if !m.opts.ConnectDisabled {
		opts.OnConnect = func() { m.markConnected(e, true, nil) }
		opts.OnConnectionLost = func(err error) { m.markConnected(e, false, err) }
		client = m.opts.Dial(opts)
		connectCtx, cancel = context.WithCancel(context.Background())
	}

	// closed 检查、条目登记与 wg.Add 在同一次加锁内完成
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return errors.New("northbound runtime is closed")
	}
	old := m.entries[rec.Name]
	if old != nil && old.breaker != nil {
		e.breaker = old.breaker
	} else {
		e.breaker = m.newBreaker(rec.Name)
	}
	e.client, e.cancel = client, cancel
	m.entries[rec.Name] = e
	if client != nil {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	if old != nil {
		m.stopEntry(old)
	}
	if client == nil {
		return nil
	}
	go m.connectLoop(connectCtx, e, client)

	m.log.Info("Northbound registered", "name", rec.Name, "type", e.nbType, "broker", opts.Broker)
	return nil
}

// Reload 按最新记录重建连接器
func (m *Manager) Reload(ctx context.Context, rec *models.NorthboundConfig) error {
	if rec == nil {
		return nil
	}
	m.Remove(rec.Name)
	return m.Apply(ctx, rec)
}

// Remove 断开并注销连接器
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	e, ok := m.entries[name]
	if ok {
		delete(m.entries, name)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.stopEntry(e)
	m.opts.Metrics.forget(e.name, e.nbType)
	m.log.Info("Northbound removed", "name", name)
}

// Has 是否已注册
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[name]
	return ok
}

// Status 单个连接器的运行时快照
func (m *Manager) Status(name string) (models.NorthboundStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return models.NorthboundStatus{Name: name, BreakerState: circuit.Closed.String()}, false
	}
	return m.snapshotLocked(e), true
}

// Statuses 所有已注册连接器的快照，按名称排序
func (m *Manager) Statuses() []models.NorthboundStatus {
	m.mu.RLock()
	out := make([]models.NorthboundStatus, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, m.snapshotLocked(e))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close 断开所有连接器并等待连接协程退出
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		m.stopEntry(e)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) snapshotLocked(e *entry) models.NorthboundStatus {
	connected := e.connected
	if e.client != nil && connected {
		connected = e.client.IsConnected()
	}
	return models.NorthboundStatus{
		Name:           e.name,
		Type:           e.nbType,
		Registered:     true,
		Enabled:        true,
		Connected:      connected,
		BreakerState:   e.breaker.State().String(),
		UploadInterval: e.uploadInterval,
		LastError:      e.lastErr,
	}
}

func (m *Manager) newBreaker(name string) *circuit.Breaker {
	metrics := m.opts.Metrics
	return circuit.New(name, m.opts.Breaker,
		circuit.WithLogger(m.log),
		circuit.WithStateChange(func(name string, _, to circuit.State) {
			metrics.breaker(name, to)
		}),
	)
}

// setFailed 配置无法解析时仍登记条目，便于状态页展示错误
func (m *Manager) setFailed(rec *models.NorthboundConfig, err error) {
	m.mu.Lock()
	old := m.entries[rec.Name]
	e := &entry{
		name:    rec.Name,
		nbType:  m.registry.Normalize(rec.Type),
		lastErr: err.Error(),
	}
	if old != nil && old.breaker != nil {
		e.breaker = old.breaker
	} else {
		e.breaker = m.newBreaker(rec.Name)
	}
	m.entries[rec.Name] = e
	m.mu.Unlock()

	if old != nil {
		m.stopEntry(old)
	}
}

func (m *Manager) stopEntry(e *entry) {
	m.mu.Lock()
	cancel, client := e.cancel, e.client
	e.cancel, e.client = nil, nil
	e.connected = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Disconnect()
	}
}

func (m *Manager) markConnected(e *entry, connected bool, err error) {
	m.mu.Lock()
	if e.client == nil {
		m.mu.Unlock()
		return
	}
	e.connected = connected
	if err != nil {
		e.lastErr = err.Error()
	} else if connected {
		e.lastErr = ""
	}
	m.opts.Metrics.setConnected(e.name, e.nbType, connected)
	m.mu.Unlock()

	if !connected && err != nil {
		m.log.Warn("Northbound connection lost", "name", e.name, "error", err.Error())
	}
}

// connectLoop 通过熔断器进行首次连接，失败后按重连间隔重试直到成功或被取消
func (m *Manager) connectLoop(ctx context.Context, e *entry, client Client) {
	defer m.wg.Done()

	for {
		err := e.breaker.Execute(func() error {
			return client.Connect(ctx)
		})
		if ctx.Err() != nil {
			return
		}

		var openErr *circuit.OpenError
		if !errors.As(err, &openErr) {
			m.opts.Metrics.attempt(e.name, err)
		}
		if err == nil {
			m.markConnected(e, true, nil)
			m.log.Info("Northbound connected", "name", e.name)
			return
		}

		m.mu.Lock()
		if e.client == client {
			e.lastErr = err.Error()
			e.connected = false
		}
		m.mu.Unlock()

		wait := m.opts.ReconnectInterval
		if openErr != nil && openErr.RetryAfter > wait {
			wait = openErr.RetryAfter
		}
		m.log.Debug("Northbound connect failed", "name", e.name, "error", err.Error(), "retry_in", wait.String())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
