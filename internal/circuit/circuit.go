package circuit

import (
	"sync"
	"time"

	"github.com/gonglijing/nbconsole/internal/logger"
)

// State 熔断器状态
type State int

const (
	Closed   State = iota // 关闭状态，正常连接
	Open                  // 打开状态，拒绝连接尝试
	HalfOpen              // 半开状态，尝试恢复
)

// String 返回状态字符串
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	FailureThreshold int           // 失败次数阈值
	FailureWindow    time.Duration // 失败计数时间窗口
	SuccessThreshold int           // 半开状态下成功次数阈值
	RecoveryTimeout  time.Duration // 恢复尝试间隔
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
		SuccessThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = def.FailureWindow
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = def.RecoveryTimeout
	}
	return c
}

// StateChangeFunc 状态切换回调（在锁外调用）
type StateChangeFunc func(name string, from, to State)

// Breaker 北向连接熔断器，每个连接器一个
type Breaker struct {
	name     string
	config   Config
	log      *logger.Logger
	onChange StateChangeFunc
	now      func() time.Time

	mu           sync.Mutex
	state        State
	failures     []time.Time
	halfOpenOK   int
	lastFailure  time.Time
	requestCount int64
	failureCount int64
	successCount int64
}

// Option 熔断器可选项
type Option func(*Breaker)

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(b *Breaker) {
		if l != nil {
			b.log = l
		}
	}
}

// WithStateChange 设置状态切换回调
func WithStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New 创建熔断器
func New(name string, config Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		config: config.withDefaults(),
		log:    logger.NewNop(),
		now:    time.Now,
		state:  Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name 熔断器名称
func (b *Breaker) Name() string { return b.name }

// Execute 执行受保护的函数
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	b.requestCount++
	allowed, transition := b.allowLocked()
	retryAfter := b.retryAfterLocked()
	b.mu.Unlock()
	b.notify(transition)

	if !allowed {
		return &OpenError{Name: b.name, RetryAfter: retryAfter}
	}

	err := fn()

	b.mu.Lock()
	transition = b.recordLocked(err == nil)
	b.mu.Unlock()
	b.notify(transition)
	return err
}

type change struct {
	from, to State
	changed  bool
}

func (b *Breaker) allowLocked() (bool, change) {
	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) >= b.config.RecoveryTimeout {
			return true, b.setStateLocked(HalfOpen)
		}
		return false, change{}
	default:
		return true, change{}
	}
}

func (b *Breaker) recordLocked(success bool) change {
	now := b.now()
	if success {
		b.successCount++
		if b.state == HalfOpen {
			b.halfOpenOK++
			if b.halfOpenOK >= b.config.SuccessThreshold {
				return b.setStateLocked(Closed)
			}
		}
		return change{}
	}

	b.failureCount++
	b.lastFailure = now
	b.failures = append(b.failures, now)
	b.pruneLocked(now)

	switch b.state {
	case HalfOpen:
		return b.setStateLocked(Open)
	case Closed:
		if len(b.failures) >= b.config.FailureThreshold {
			return b.setStateLocked(Open)
		}
	}
	return change{}
}

func (b *Breaker) setStateLocked(to State) change {
	from := b.state
	if from == to {
		return change{}
	}
	b.state = to
	b.halfOpenOK = 0
	if to != Open {
		b.failures = b.failures[:0]
	}
	return change{from: from, to: to, changed: true}
}

func (b *Breaker) notify(c change) {
	if !c.changed {
		return
	}
	b.log.Info("Circuit breaker state changed", "name", b.name, "from", c.from.String(), "to", c.to.String())
	if b.onChange != nil {
		b.onChange(b.name, c.from, c.to)
	}
}

// pruneLocked 清理窗口外的失败记录
func (b *Breaker) pruneLocked(now time.Time) {
	windowStart := now.Add(-b.config.FailureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) retryAfterLocked() time.Duration {
	if b.state != Open {
		return 0
	}
	d := b.config.RecoveryTimeout - b.now().Sub(b.lastFailure)
	if d < 0 {
		return 0
	}
	return d
}

// State 获取当前状态，打开状态超过恢复时间后视为半开
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.config.RecoveryTimeout {
		return HalfOpen
	}
	return b.state
}

// Reset 重置熔断器
func (b *Breaker) Reset() {
	b.mu.Lock()
	transition := b.setStateLocked(Closed)
	b.failures = b.failures[:0]
	b.requestCount = 0
	b.failureCount = 0
	b.successCount = 0
	b.mu.Unlock()
	b.notify(transition)
}

// Stats 熔断器统计
type Stats struct {
	State        string  `json:"state"`
	RequestCount int64   `json:"request_count"`
	FailureCount int64   `json:"failure_count"`
	SuccessCount int64   `json:"success_count"`
	FailureRate  float64 `json:"failure_rate"`
	RetryAfter   string  `json:"retry_after,omitempty"`
}

// Stats 获取统计信息
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		State:        b.state.String(),
		RequestCount: b.requestCount,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
	}
	if total := b.failureCount + b.successCount; total > 0 {
		s.FailureRate = float64(b.failureCount) / float64(total)
	}
	if d := b.retryAfterLocked(); d > 0 {
		s.RetryAfter = d.String()
	}
	return s
}

// OpenError 熔断器打开错误
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return "circuit breaker " + e.Name + " is open, retry after " + e.RetryAfter.String()
}
