package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxBackups = 3
	megabyte          = 1024 * 1024
)

// Options 日志配置
type Options struct {
	Level        string // debug, info, warn, error
	Format       string // json 或 console
	File         string // 为空时只输出到标准输出
	MaxSizeBytes int64
	Output       io.Writer // 测试时替换标准输出
}

// ParseLevel 解析日志级别
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger 结构化日志，键值对风格
type Logger struct {
	module string
	level  zap.AtomicLevel
	sugar  *zap.SugaredLogger
	closer io.Closer
}

// New 创建结构化日志
func New(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(out)}

	var closer io.Closer
	if strings.TrimSpace(opts.File) != "" {
		w := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSizeMB(opts.MaxSizeBytes),
			MaxBackups: defaultMaxBackups,
			LocalTime:  true,
		}
		sinks = append(sinks, zapcore.AddSync(w))
		closer = w
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{level: level, sugar: z.Sugar(), closer: closer}, nil
}

// maxSizeMB 文件轮转阈值按 MB 向上取整，至少 1MB
func maxSizeMB(n int64) int {
	if n <= 0 {
		return 1
	}
	return int((n + megabyte - 1) / megabyte)
}

// NewNop 丢弃所有输出
func NewNop() *Logger {
	return &Logger{level: zap.NewAtomicLevel(), sugar: zap.NewNop().Sugar()}
}

// WithModule 创建带模块名的日志
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{
		module: module,
		level:  l.level,
		sugar:  l.sugar.Desugar().With(zap.String("module", module)).Sugar(),
	}
}

// Module 返回模块名
func (l *Logger) Module() string { return l.module }

// SetLevel 运行时调整级别，对派生的模块日志同样生效
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// Zap 返回底层 zap.Logger，供中间件等直接使用
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Debug 调试日志
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info 信息日志
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn 警告日志
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error 错误日志
func (l *Logger) Error(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append([]interface{}{zap.Error(err)}, keysAndValues...)
	}
	l.sugar.Errorw(msg, keysAndValues...)
}

// Fatal 致命日志
func (l *Logger) Fatal(msg string, err error) {
	l.sugar.Fatalw(msg, zap.Error(err))
}

// Sync 刷新缓冲并关闭日志文件
func (l *Logger) Sync() error {
	err := l.sugar.Sync()
	if l.closer != nil {
		if cerr := l.closer.Close(); cerr != nil {
			return cerr
		}
	}
	if err != nil && !isStdSyncError(err) {
		return err
	}
	return nil
}

// stdout/stderr 在部分平台上不支持 fsync
func isStdSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// 全局logger
var (
	globalMu sync.RWMutex
	global   = mustDefault()
)

func mustDefault() *Logger {
	l, err := New(Options{Level: "info", Format: "console"})
	if err != nil {
		return NewNop()
	}
	return l.WithModule("nbconsole")
}

// Init 按配置替换全局日志
func Init(opts Options) (*Logger, error) {
	l, err := New(opts)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	SetGlobal(l)
	return l, nil
}

// SetGlobal 替换全局日志
func SetGlobal(l *Logger) {
	if l == nil {
		return
	}
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// L 返回全局日志
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Named 返回带模块名的全局日志
func Named(module string) *Logger {
	return L().WithModule(module)
}

// Debug 全局调试日志
func Debug(msg string, keysAndValues ...interface{}) {
	L().sugar.Debugw(msg, keysAndValues...)
}

// Info 全局信息日志
func Info(msg string, keysAndValues ...interface{}) {
	L().sugar.Infow(msg, keysAndValues...)
}

// Warn 全局警告日志
func Warn(msg string, keysAndValues ...interface{}) {
	L().sugar.Warnw(msg, keysAndValues...)
}

// Error 全局错误日志
func Error(msg string, err error, keysAndValues ...interface{}) {
	if err != nil {
		keysAndValues = append([]interface{}{zap.Error(err)}, keysAndValues...)
	}
	L().sugar.Errorw(msg, keysAndValues...)
}

// Fatal 全局致命日志
func Fatal(msg string, err error) {
	L().sugar.Fatalw(msg, zap.Error(err))
}
