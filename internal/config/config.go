package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	// 服务器配置
	ListenAddr string `json:"listen_addr"`
	// TLS/证书配置
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`
	TLSAuto     bool   `json:"tls_auto"`      // 是否启用自动申请（Let's Encrypt）
	TLSDomain   string `json:"tls_domain"`    // 自动证书域名
	TLSCacheDir string `json:"tls_cache_dir"` // 自动证书缓存目录

	// HTTP超时配置
	HTTPReadTimeout  time.Duration `json:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `json:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `json:"http_idle_timeout"`
	ShutdownTimeout  time.Duration `json:"shutdown_timeout"`

	// 数据库配置
	DBPath string `json:"db_path"`

	// 鉴权配置，为空时不校验 Bearer Token
	JWTSecret string `json:"-"`

	// CORS配置
	AllowedOrigins string `json:"allowed_origins"`

	// 日志配置
	LogLevel        string `json:"log_level"`
	LogJSON         bool   `json:"log_json"`
	LogFile         string `json:"log_file"`
	LogMaxSizeBytes int64  `json:"log_max_size_bytes"`

	// 客户端配置（CLI 访问网关 REST 接口）
	APIBase    string        `json:"api_base"`
	APIToken   string        `json:"-"`
	APITimeout time.Duration `json:"api_timeout"`

	// 北向配置
	NorthboundDefaultType           string        `json:"northbound_default_type"`
	NorthboundDefaultUploadMs       int           `json:"northbound_default_upload_ms"`
	NorthboundSchemaDrivenTypes     string        `json:"northbound_schema_driven_types"` // 逗号分隔
	NorthboundSchemaFile            string        `json:"northbound_schema_file"`
	NorthboundStatusPollInterval    time.Duration `json:"northbound_status_poll_interval"`
	NorthboundRuntimeEnabled        bool          `json:"northbound_runtime_enabled"`
	NorthboundMQTTConnectTimeout    time.Duration `json:"northbound_mqtt_connect_timeout"`
	NorthboundMQTTReconnectInterval time.Duration `json:"northbound_mqtt_reconnect_interval"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:                      ":8080",
		TLSCacheDir:                     "cert-cache",
		HTTPReadTimeout:                 30 * time.Second,
		HTTPWriteTimeout:                30 * time.Second,
		HTTPIdleTimeout:                 60 * time.Second,
		ShutdownTimeout:                 10 * time.Second,
		DBPath:                          "nbconsole.db",
		LogLevel:                        "info",
		LogMaxSizeBytes:                 2 * 1024 * 1024,
		APIBase:                         "http://127.0.0.1:8080",
		APITimeout:                      10 * time.Second,
		NorthboundDefaultType:           "pandax",
		NorthboundDefaultUploadMs:       5000,
		NorthboundSchemaDrivenTypes:     "pandax,ithings,sagoo",
		NorthboundStatusPollInterval:    5 * time.Second,
		NorthboundRuntimeEnabled:        true,
		NorthboundMQTTConnectTimeout:    10 * time.Second,
		NorthboundMQTTReconnectInterval: 5 * time.Second,
	}
}

var defaultEnvConfig = DefaultConfig()

// ConfigSearchPaths 未指定配置文件时依次查找
var ConfigSearchPaths = []string{
	"config/config.yaml",
	"../config/config.yaml",
	"./config.yaml",
}

// Load 从配置文件和环境变量加载配置。path 为空时按 ConfigSearchPaths 查找，
// 找不到文件时使用默认配置。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// 1. 先从 YAML 文件加载配置
	if err := loadFromFile(cfg, path); err != nil {
		if path != "" || !errors.Is(err, errConfigNotFound) {
			return nil, err
		}
	}

	// 2. 环境变量覆盖配置
	loadFromEnv(cfg)

	return cfg, nil
}

var errConfigNotFound = errors.New("config file not found")

// fileConfig 配置文件结构
type fileConfig struct {
	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		AllowedOrigins  string `yaml:"allowed_origins"`
		TLS             struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
			Auto     *bool  `yaml:"auto"`
			Domain   string `yaml:"domain"`
			CacheDir string `yaml:"cache_dir"`
		} `yaml:"tls"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Log struct {
		Level        string `yaml:"level"`
		JSON         *bool  `yaml:"json"`
		File         string `yaml:"file"`
		MaxSizeBytes int64  `yaml:"max_size_bytes"`
	} `yaml:"log"`
	API struct {
		Base    string `yaml:"base"`
		Token   string `yaml:"token"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Northbound struct {
		DefaultType           string   `yaml:"default_type"`
		DefaultUploadMs       int      `yaml:"default_upload_ms"`
		SchemaDrivenTypes     []string `yaml:"schema_driven_types"`
		SchemaFile            string   `yaml:"schema_file"`
		StatusPollInterval    string   `yaml:"status_poll_interval"`
		RuntimeEnabled        *bool    `yaml:"runtime_enabled"`
		MQTTConnectTimeout    string   `yaml:"mqtt_connect_timeout"`
		MQTTReconnectInterval string   `yaml:"mqtt_reconnect_interval"`
	} `yaml:"northbound"`
}

// loadFromFile 从 YAML 文件加载配置
func loadFromFile(cfg *Config, path string) error {
	configFile := path
	if configFile == "" {
		for _, candidate := range ConfigSearchPaths {
			if _, err := os.Stat(candidate); err == nil {
				configFile = candidate
				break
			}
		}
	}
	if configFile == "" {
		return errConfigNotFound
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return applyYAML(cfg, data)
}

func applyYAML(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// 应用服务器配置
	setStringIfNotEmpty(&cfg.ListenAddr, fc.Server.Addr)
	setDurationFromText(&cfg.HTTPReadTimeout, fc.Server.ReadTimeout)
	setDurationFromText(&cfg.HTTPWriteTimeout, fc.Server.WriteTimeout)
	setDurationFromText(&cfg.HTTPIdleTimeout, fc.Server.IdleTimeout)
	setDurationFromText(&cfg.ShutdownTimeout, fc.Server.ShutdownTimeout)
	setStringIfNotEmpty(&cfg.AllowedOrigins, fc.Server.AllowedOrigins)
	setStringIfNotEmpty(&cfg.TLSCertFile, fc.Server.TLS.CertFile)
	setStringIfNotEmpty(&cfg.TLSKeyFile, fc.Server.TLS.KeyFile)
	setBoolIfSet(&cfg.TLSAuto, fc.Server.TLS.Auto)
	setStringIfNotEmpty(&cfg.TLSDomain, fc.Server.TLS.Domain)
	setStringIfNotEmpty(&cfg.TLSCacheDir, fc.Server.TLS.CacheDir)

	setStringIfNotEmpty(&cfg.DBPath, fc.Database.Path)
	setStringIfNotEmpty(&cfg.JWTSecret, fc.Auth.JWTSecret)

	setStringIfNotEmpty(&cfg.LogLevel, fc.Log.Level)
	setBoolIfSet(&cfg.LogJSON, fc.Log.JSON)
	setStringIfNotEmpty(&cfg.LogFile, fc.Log.File)
	if fc.Log.MaxSizeBytes > 0 {
		cfg.LogMaxSizeBytes = fc.Log.MaxSizeBytes
	}

	setStringIfNotEmpty(&cfg.APIBase, fc.API.Base)
	setStringIfNotEmpty(&cfg.APIToken, fc.API.Token)
	setDurationFromText(&cfg.APITimeout, fc.API.Timeout)

	nb := fc.Northbound
	setStringIfNotEmpty(&cfg.NorthboundDefaultType, nb.DefaultType)
	setPositiveInt(&cfg.NorthboundDefaultUploadMs, nb.DefaultUploadMs)
	if len(nb.SchemaDrivenTypes) > 0 {
		cfg.NorthboundSchemaDrivenTypes = strings.Join(nb.SchemaDrivenTypes, ",")
	}
	setStringIfNotEmpty(&cfg.NorthboundSchemaFile, nb.SchemaFile)
	setDurationFromText(&cfg.NorthboundStatusPollInterval, nb.StatusPollInterval)
	setBoolIfSet(&cfg.NorthboundRuntimeEnabled, nb.RuntimeEnabled)
	setDurationFromText(&cfg.NorthboundMQTTConnectTimeout, nb.MQTTConnectTimeout)
	setDurationFromText(&cfg.NorthboundMQTTReconnectInterval, nb.MQTTReconnectInterval)

	return nil
}

func setStringIfNotEmpty(dst *string, value string) {
	if dst == nil || value == "" {
		return
	}
	*dst = value
}

func setBoolIfSet(dst *bool, value *bool) {
	if dst == nil || value == nil {
		return
	}
	*dst = *value
}

func setDurationFromText(dst *time.Duration, value string) {
	if dst == nil || value == "" {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}

func setPositiveInt(dst *int, value int) {
	if dst == nil || value <= 0 {
		return
	}
	*dst = value
}

// loadFromEnv 从环境变量加载配置（会覆盖文件配置）
func loadFromEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	defaults := defaultEnvConfig

	setStringFromEnv(&cfg.ListenAddr, "LISTEN_ADDR")

	setDurationFromEnvWithFallback(&cfg.HTTPReadTimeout, "HTTP_READ_TIMEOUT", defaults.HTTPReadTimeout, false)
	setDurationFromEnvWithFallback(&cfg.HTTPWriteTimeout, "HTTP_WRITE_TIMEOUT", defaults.HTTPWriteTimeout, false)
	setDurationFromEnv(&cfg.HTTPIdleTimeout, "HTTP_IDLE_TIMEOUT")
	setDurationFromEnvWithFallback(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", defaults.ShutdownTimeout, true)

	setStringFromEnv(&cfg.DBPath, "DB_PATH")

	setStringFromEnv(&cfg.TLSCertFile, "TLS_CERT_FILE")
	setStringFromEnv(&cfg.TLSKeyFile, "TLS_KEY_FILE")
	setBoolFromEnvAllowOne(&cfg.TLSAuto, "TLS_AUTO")
	setStringFromEnv(&cfg.TLSDomain, "TLS_DOMAIN")
	setStringFromEnv(&cfg.TLSCacheDir, "TLS_CACHE_DIR")

	setStringFromEnv(&cfg.JWTSecret, "JWT_SECRET")
	setStringFromEnv(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")

	setStringFromEnv(&cfg.LogLevel, "LOG_LEVEL")
	setBoolFromEnv(&cfg.LogJSON, "LOG_JSON")
	setStringFromEnv(&cfg.LogFile, "LOG_FILE")

	setStringFromEnv(&cfg.APIBase, "NBCONSOLE_API_BASE")
	setStringFromEnv(&cfg.APIToken, "NBCONSOLE_TOKEN")
	setDurationFromEnvWithFallback(&cfg.APITimeout, "NBCONSOLE_API_TIMEOUT", defaults.APITimeout, true)

	setStringFromEnv(&cfg.NorthboundDefaultType, "NORTHBOUND_DEFAULT_TYPE")
	setPositiveIntFromEnv(&cfg.NorthboundDefaultUploadMs, "NORTHBOUND_DEFAULT_UPLOAD_MS")
	setStringFromEnv(&cfg.NorthboundSchemaDrivenTypes, "NORTHBOUND_SCHEMA_DRIVEN_TYPES")
	setStringFromEnv(&cfg.NorthboundSchemaFile, "NORTHBOUND_SCHEMA_FILE")
	setDurationFromEnvWithFallback(&cfg.NorthboundStatusPollInterval, "NORTHBOUND_STATUS_POLL_INTERVAL", defaults.NorthboundStatusPollInterval, true)
	setBoolFromEnvAllowOne(&cfg.NorthboundRuntimeEnabled, "NORTHBOUND_RUNTIME_ENABLED")
	setDurationFromEnvWithFallback(&cfg.NorthboundMQTTConnectTimeout, "NORTHBOUND_MQTT_CONNECT_TIMEOUT", defaults.NorthboundMQTTConnectTimeout, true)
	setDurationFromEnvWithFallback(&cfg.NorthboundMQTTReconnectInterval, "NORTHBOUND_MQTT_RECONNECT_INTERVAL", defaults.NorthboundMQTTReconnectInterval, true)
}

func setStringFromEnv(dst *string, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		*dst = value
	}
}

func setBoolFromEnv(dst *bool, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		*dst = parseTrueBool(value)
	}
}

func setBoolFromEnvAllowOne(dst *bool, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		*dst = parseTrueBoolOrOne(value)
	}
}

func setPositiveIntFromEnv(dst *int, key string) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := cast.ToIntE(strings.TrimSpace(value)); err == nil && parsed > 0 {
		*dst = parsed
	}
}

func setDurationFromEnv(dst *time.Duration, key string) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}

func setDurationFromEnvWithFallback(dst *time.Duration, key string, fallback time.Duration, mustPositive bool) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		if !mustPositive || parsed > 0 {
			*dst = parsed
			return
		}
	}
	if *dst == 0 {
		*dst = fallback
	}
}

func envValue(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}

func parseTrueBool(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

func parseTrueBoolOrOne(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.EqualFold(trimmed, "true") || trimmed == "1"
}

// GetAllowedOrigins 获取允许的跨域来源列表
func (c *Config) GetAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return []string{"http://localhost:8080", "http://127.0.0.1:8080"}
	}
	return splitList(c.AllowedOrigins)
}

// SchemaDrivenTypes 返回走 schema 表单的北向类型
func (c *Config) SchemaDrivenTypes() []string {
	return splitList(c.NorthboundSchemaDrivenTypes)
}

func splitList(text string) []string {
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String 返回配置的字符串表示
func (c *Config) String() string {
	return fmt.Sprintf("Config{ListenAddr=%s, DBPath=%s, APIBase=%s, LogLevel=%s, NorthboundDefaultType=%s, SchemaDriven=%s}",
		c.ListenAddr, c.DBPath, c.APIBase, c.LogLevel, c.NorthboundDefaultType, c.NorthboundSchemaDrivenTypes)
}
