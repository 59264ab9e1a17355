package models

import (
	"strings"
	"time"
)

// NorthboundConfig 北向连接器配置记录。
// 嵌套的 Config JSON 是 schema 驱动类型的权威来源；扁平列仅为兼容旧版本保留。
type NorthboundConfig struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Type           string    `json:"type" db:"type"` // mqtt, pandax, ithings, sagoo
	Enabled        int       `json:"enabled" db:"enabled"`
	Config         string    `json:"config" db:"config"`
	UploadInterval int       `json:"upload_interval" db:"upload_interval"` // ms
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	ServerURL  string `json:"server_url,omitempty" db:"server_url"`
	Username   string `json:"username,omitempty" db:"username"`
	ClientID   string `json:"client_id,omitempty" db:"client_id"`
	Topic      string `json:"topic,omitempty" db:"topic"`
	AlarmTopic string `json:"alarm_topic,omitempty" db:"alarm_topic"`
	ProductKey string `json:"product_key,omitempty" db:"product_key"`
	DeviceKey  string `json:"device_key,omitempty" db:"device_key"`
	QOS        *int   `json:"qos,omitempty" db:"qos"`
	Retain     *bool  `json:"retain,omitempty" db:"retain"`
	KeepAlive  *int   `json:"keep_alive,omitempty" db:"keep_alive"`
	Timeout    *int   `json:"timeout,omitempty" db:"timeout"`

	// Connection 为列表接口附带的只读视图，不落库
	Connection *NorthboundConnection `json:"connection,omitempty" db:"-"`
}

// NorthboundConnection 列表接口返回的连接摘要
type NorthboundConnection struct {
	ServerURL string `json:"server_url,omitempty"`
}

// IsEnabled reports whether the record is switched on.
func (c *NorthboundConfig) IsEnabled() bool {
	return c != nil && c.Enabled != 0
}

// EffectiveServerURL returns the flat server_url or the connection view's.
func (c *NorthboundConfig) EffectiveServerURL() string {
	if c == nil {
		return ""
	}
	if v := strings.TrimSpace(c.ServerURL); v != "" {
		return v
	}
	if c.Connection != nil {
		return strings.TrimSpace(c.Connection.ServerURL)
	}
	return ""
}

// NorthboundStatus 北向运行时快照，按 Name 与配置记录关联
type NorthboundStatus struct {
	Name           string `json:"name"`
	Type           string `json:"type,omitempty"`
	Registered     bool   `json:"registered"`
	Enabled        bool   `json:"enabled"`
	Connected      bool   `json:"connected"`
	BreakerState   string `json:"breaker_state"`
	UploadInterval int    `json:"upload_interval,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

// NorthboundView 记录与运行时快照合并后的展示行
type NorthboundView struct {
	NorthboundConfig
	Status *NorthboundStatus `json:"status,omitempty"`
}

// GatewayIdentitySyncResult 网关身份同步结果
type GatewayIdentitySyncResult struct {
	Updated int      `json:"updated"`
	Names   []string `json:"names,omitempty"`
}
