// Package editor 北向连接器编辑会话：打开 -> (切换类型)* -> 校验 -> 提交 -> 关闭。
//
// 会话持有自己的配置副本，schema 通过缓存异步加载；每次加载带单调递增序号，
// 过期的加载结果直接丢弃。
package editor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/gonglijing/nbconsole/internal/logger"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

var (
	// ErrNotOpen 会话未打开
	ErrNotOpen = errors.New("editor session is not open")
	// ErrBusy 已有提交在进行中
	ErrBusy = errors.New("editor session is busy submitting")
	// ErrSchemaUnavailable schema 尚未加载成功，schema 驱动类型不能编辑/提交
	ErrSchemaUnavailable = errors.New("northbound schema unavailable")
	// ErrSuperseded schema 加载结果已被更新的加载取代
	ErrSuperseded = errors.New("schema load superseded")
	// ErrUnknownField 字段不在当前 schema 中
	ErrUnknownField = errors.New("unknown config field")
	// ErrFreeFormType 自由 JSON 类型不支持按字段编辑
	ErrFreeFormType = errors.New("type uses free-form JSON config")
)

// FieldName 名称字段在错误表中的键
const FieldName = "name"

// FieldConfig 自由 JSON 文本在错误表中的键
const FieldConfig = "config"

// State 会话状态
type State int

const (
	StateClosed State = iota
	StateCreating
	StateEditing
	StateValidating
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateEditing:
		return "editing"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// Backend 北向配置的持久化端（由 API 客户端实现）
type Backend interface {
	Create(ctx context.Context, rec *models.NorthboundConfig) (*models.NorthboundView, error)
	Update(ctx context.Context, id int64, rec *models.NorthboundConfig) (*models.NorthboundView, error)
}

// Options 会话依赖
type Options struct {
	Backend         Backend
	Schemas         schema.Provider
	Registry        *nbtype.Registry
	DefaultType     string
	DefaultUploadMs int
	Logger          *logger.Logger
}

// Session 一次编辑会话
type Session struct {
	backend         Backend
	schemas         schema.Provider
	registry        *nbtype.Registry
	defaultType     string
	defaultUploadMs int
	log             *logger.Logger

	mu         sync.Mutex
	state      State
	mode       State
	record     models.NorthboundConfig
	nbType     string
	fields     []schema.Field
	config     nbconfig.Config
	configText string
	errors     nbconfig.FieldErrors
	schemaErr  error
	seq        uint64
	busy       bool
}

// NewSession 创建会话（初始为关闭状态）
func NewSession(opts Options) *Session {
	if opts.Registry == nil {
		opts.Registry = nbtype.Default()
	}
	if opts.Schemas == nil {
		opts.Schemas = schema.NewBuiltin()
	}
	if _, ok := opts.Schemas.(*schema.Cache); !ok {
		opts.Schemas = schema.NewCache(opts.Schemas, opts.Registry.Normalize)
	}
	if opts.DefaultUploadMs <= 0 {
		opts.DefaultUploadMs = 5000
	}
	defaultType := opts.Registry.Normalize(opts.DefaultType)
	if !opts.Registry.IsSupported(defaultType) {
		defaultType = nbtype.TypePandaX
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Session{
		backend:         opts.Backend,
		schemas:         opts.Schemas,
		registry:        opts.Registry,
		defaultType:     defaultType,
		defaultUploadMs: opts.DefaultUploadMs,
		log:             opts.Logger.WithModule("editor"),
		errors:          nbconfig.FieldErrors{},
	}
}

// OpenCreate 以默认类型打开新建会话
func (s *Session) OpenCreate(ctx context.Context) error {
	s.mu.Lock()
	s.resetLocked()
	s.state, s.mode = StateCreating, StateCreating
	s.record = models.NorthboundConfig{Enabled: 1, UploadInterval: s.defaultUploadMs}
	s.nbType = s.defaultType
	s.config = nbconfig.Normalize(map[string]interface{}{}, nil, s.defaultUploadMs)
	s.configText = "{}"
	s.mu.Unlock()

	return s.loadSchema(ctx, map[string]interface{}{}, false)
}

// OpenEdit 以已有记录打开编辑会话
func (s *Session) OpenEdit(ctx context.Context, rec *models.NorthboundConfig) error {
	if rec == nil {
		return ErrNotOpen
	}
	s.mu.Lock()
	s.resetLocked()
	s.state, s.mode = StateEditing, StateEditing
	s.record = *rec
	s.record.Connection = nil
	s.nbType = s.registry.Normalize(rec.Type)
	s.record.Type = s.nbType
	if s.record.UploadInterval <= 0 {
		s.record.UploadInterval = s.defaultUploadMs
	}
	s.configText = rec.Config
	if strings.TrimSpace(s.configText) == "" {
		s.configText = "{}"
	}
	raw := nbconfig.ParseConfigFromRecord(&s.record, s.nbType, s.record.UploadInterval, s.defaultUploadMs)
	s.mu.Unlock()

	return s.loadSchema(ctx, raw, false)
}

// SwitchType 切换类型：重新加载 schema，并按新 schema 重新规范化当前配置，
// 不在新 schema 中的键被丢弃，之前的校验错误被清空。
func (s *Session) SwitchType(ctx context.Context, nbType string) error {
	s.mu.Lock()
	if !s.openLocked() {
		s.mu.Unlock()
		return ErrNotOpen
	}
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	next := s.registry.Normalize(nbType)
	if !s.registry.IsSupported(next) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", schema.ErrUnsupportedType, nbType)
	}
	raw := s.currentRawLocked()
	s.nbType = next
	s.record.Type = next
	s.fields = nil
	s.errors = nbconfig.FieldErrors{}
	s.mu.Unlock()

	return s.loadSchema(ctx, raw, true)
}

// RetrySchema 重新加载当前类型的 schema（加载失败后的手动重试）
func (s *Session) RetrySchema(ctx context.Context) error {
	s.mu.Lock()
	if !s.openLocked() {
		s.mu.Unlock()
		return ErrNotOpen
	}
	raw := s.currentRawLocked()
	s.mu.Unlock()
	return s.loadSchema(ctx, raw, false)
}

// loadSchema 加载当前类型的 schema 并规范化 raw。
// 加载期间会话不加锁；结果返回时序号已变化（再次切换或关闭）则丢弃。
// 自由 JSON 类型不加载 schema，rewriteText 为 true 时用 raw 重写配置文本。
func (s *Session) loadSchema(ctx context.Context, raw map[string]interface{}, rewriteText bool) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	nbType := s.nbType
	schemaDriven := s.registry.IsSchemaDriven(nbType)
	if !schemaDriven {
		s.fields = nil
		s.schemaErr = nil
		if rewriteText {
			if text, err := nbconfig.Config(raw).JSON(); err == nil {
				s.configText = text
			}
		}
		s.config = nbconfig.Config(raw).Clone()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	fields, err := s.schemas.Fields(ctx, nbType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq || !s.openLocked() {
		s.log.Debug("Discard stale schema load", "type", nbType, "seq", seq)
		return ErrSuperseded
	}
	if err != nil {
		s.fields = nil
		s.schemaErr = err
		s.log.Warn("Schema load failed", "type", nbType, "error", err.Error())
		return err
	}
	s.fields = fields
	s.schemaErr = nil
	s.config = nbconfig.Normalize(raw, fields, s.recordUploadLocked())
	s.syncUploadFromConfigLocked()
	return nil
}

// Set 设置单个 schema 字段。int/bool 字段解析失败时只记录字段错误，
// 配置保持原值，错误清除前提交会被拒绝。
func (s *Session) Set(key, raw string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openLocked() {
		return ErrNotOpen
	}
	if !s.registry.IsSchemaDriven(s.nbType) {
		return ErrFreeFormType
	}
	if s.fields == nil {
		return ErrSchemaUnavailable
	}
	f, ok := schema.Lookup(s.fields, key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}

	delete(s.errors, key)
	switch f.Type {
	case schema.FieldTypeInt:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			s.errors[key] = fmt.Sprintf("%s 必须是整数", f.DisplayLabel())
			return nil
		}
		s.config[key] = n
		if key == schema.KeyUploadIntervalMs && n > 0 {
			s.record.UploadInterval = n
		}
	case schema.FieldTypeBool:
		b, err := cast.ToBoolE(strings.TrimSpace(raw))
		if err != nil {
			s.errors[key] = fmt.Sprintf("%s 必须是布尔值", f.DisplayLabel())
			return nil
		}
		s.config[key] = b
	default:
		s.config[key] = raw
	}
	return nil
}

// SetConfigText 设置 JSON 配置文本。自由 JSON 类型原样保存，提交时校验；
// schema 驱动类型解析后合并进当前配置并重新规范化。
func (s *Session) SetConfigText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openLocked() {
		return ErrNotOpen
	}
	delete(s.errors, FieldConfig)

	if !s.registry.IsSchemaDriven(s.nbType) {
		s.configText = text
		return nil
	}
	if s.fields == nil {
		return ErrSchemaUnavailable
	}
	parsed, err := nbconfig.ParseJSON(text)
	if err != nil {
		s.errors[FieldConfig] = "配置不是合法的 JSON 对象"
		return err
	}
	merged := s.config.Clone()
	for k, v := range parsed {
		merged[k] = v
		delete(s.errors, k)
	}
	s.config = nbconfig.Normalize(merged, s.fields, s.recordUploadLocked())
	s.syncUploadFromConfigLocked()
	return nil
}

// SetName 设置名称
func (s *Session) SetName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openLocked() {
		return ErrNotOpen
	}
	s.record.Name = strings.TrimSpace(name)
	delete(s.errors, FieldName)
	return nil
}

// SetEnabled 设置使能
func (s *Session) SetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openLocked() {
		return ErrNotOpen
	}
	s.record.Enabled = 0
	if enabled {
		s.record.Enabled = 1
	}
	return nil
}

// SetUploadInterval 设置上传周期(ms)，与 uploadIntervalMs 保持同步
func (s *Session) SetUploadInterval(ms int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.openLocked() {
		return ErrNotOpen
	}
	if ms <= 0 {
		return fmt.Errorf("upload interval must be positive: %d", ms)
	}
	s.record.UploadInterval = ms
	if schema.Has(s.fields, schema.KeyUploadIntervalMs) {
		s.config[schema.KeyUploadIntervalMs] = ms
		delete(s.errors, schema.KeyUploadIntervalMs)
	}
	return nil
}

// Submit 校验并提交。校验失败返回 nbconfig.FieldErrors，会话保持打开；
// 后端错误原样返回，不重试；成功后会话关闭。
func (s *Session) Submit(ctx context.Context) (*models.NorthboundView, error) {
	s.mu.Lock()
	if !s.openLocked() {
		s.mu.Unlock()
		return nil, ErrNotOpen
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	s.state = StateValidating
	payload, err := s.buildPayloadLocked()
	if err != nil {
		s.state = s.mode
		s.mu.Unlock()
		return nil, err
	}
	if s.backend == nil {
		s.state = s.mode
		s.mu.Unlock()
		return nil, errors.New("editor backend not configured")
	}

	s.busy = true
	s.state = StateSubmitting
	mode := s.mode
	id := s.record.ID
	s.mu.Unlock()

	var view *models.NorthboundView
	if mode == StateEditing {
		view, err = s.backend.Update(ctx, id, payload)
	} else {
		view, err = s.backend.Create(ctx, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if s.state != StateSubmitting {
		// 提交期间会话已被关闭
		return view, err
	}
	if err != nil {
		s.state = s.mode
		s.log.Warn("Submit northbound config failed", "name", payload.Name, "error", err.Error())
		return nil, err
	}
	s.resetLocked()
	return view, nil
}

// buildPayloadLocked 生成待提交记录
func (s *Session) buildPayloadLocked() (*models.NorthboundConfig, error) {
	errs := nbconfig.FieldErrors{}
	rec := s.record
	rec.Type = s.nbType
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Name == "" {
		errs[FieldName] = "名称为必填项"
	}

	if !s.registry.IsSchemaDriven(s.nbType) {
		if _, err := nbconfig.ParseJSON(s.configText); err != nil {
			errs[FieldConfig] = "配置不是合法的 JSON 对象"
			s.errors = errs
			return nil, err
		}
		if len(errs) > 0 {
			s.errors = errs
			return nil, errs
		}
		rec.Config = s.configText
		return &rec, nil
	}

	if s.fields == nil {
		if s.schemaErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaUnavailable, s.schemaErr)
		}
		return nil, ErrSchemaUnavailable
	}

	for k, v := range nbconfig.Validate(s.config, s.fields) {
		errs[k] = v
	}
	// Set 阶段记录的输入错误
	for k, v := range s.errors {
		if schema.Has(s.fields, k) {
			errs[k] = v
		}
	}
	if len(errs) > 0 {
		s.errors = errs
		return nil, errs
	}

	text, err := s.config.JSON()
	if err != nil {
		return nil, err
	}
	rec.Config = text
	// 扁平列只跟随最终的嵌套配置
	rec.ServerURL, rec.Username, rec.ClientID = "", "", ""
	rec.Topic, rec.AlarmTopic = "", ""
	rec.ProductKey, rec.DeviceKey = "", ""
	nbconfig.FillPayloadFromConfig(&rec, s.config)
	if schema.Has(s.fields, schema.KeyUploadIntervalMs) {
		if ms := cast.ToInt(s.config[schema.KeyUploadIntervalMs]); ms > 0 {
			rec.UploadInterval = ms
		}
	}
	s.errors = nbconfig.FieldErrors{}
	return &rec, nil
}

// Close 关闭会话并丢弃未提交的修改；进行中的 schema 加载结果会被丢弃。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.seq++
	s.state = StateClosed
	s.mode = StateClosed
	s.record = models.NorthboundConfig{}
	s.nbType = ""
	s.fields = nil
	s.config = nil
	s.configText = ""
	s.errors = nbconfig.FieldErrors{}
	s.schemaErr = nil
}

func (s *Session) openLocked() bool {
	return s.state != StateClosed
}

// currentRawLocked 当前配置内容，作为切换类型/重载 schema 时的输入
func (s *Session) currentRawLocked() map[string]interface{} {
	if s.registry.IsSchemaDriven(s.nbType) && s.config != nil {
		return s.config.Clone().Map()
	}
	raw := nbconfig.SafeParseJSON(s.configText)
	if len(raw) == 0 && s.config != nil {
		return s.config.Clone().Map()
	}
	return raw
}

func (s *Session) recordUploadLocked() int {
	if s.record.UploadInterval > 0 {
		return s.record.UploadInterval
	}
	return s.defaultUploadMs
}

func (s *Session) syncUploadFromConfigLocked() {
	if !schema.Has(s.fields, schema.KeyUploadIntervalMs) {
		return
	}
	if ms := cast.ToInt(s.config[schema.KeyUploadIntervalMs]); ms > 0 {
		s.record.UploadInterval = ms
	}
}

// State 当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Type 当前类型
func (s *Session) Type() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nbType
}

// Busy 是否有提交在进行中
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// SchemaDriven 当前类型是否走 schema 表单
func (s *Session) SchemaDriven() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.IsSchemaDriven(s.nbType)
}

// Fields 当前 schema 字段副本
func (s *Session) Fields() []schema.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields == nil {
		return nil
	}
	return schema.Clone(s.fields)
}

// Config 当前配置副本
func (s *Session) Config() nbconfig.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Clone()
}

// ConfigText 自由 JSON 类型的配置文本
func (s *Session) ConfigText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configText
}

// Record 当前记录（扁平字段）副本
func (s *Session) Record() models.NorthboundConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Errors 字段错误副本
func (s *Session) Errors() nbconfig.FieldErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(nbconfig.FieldErrors, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// SchemaError 最近一次 schema 加载错误
func (s *Session) SchemaError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaErr
}
