// Package schema holds the field descriptors that drive northbound connector
// config forms, the built-in descriptor tables and the providers/cache the
// editor loads them through.
package schema

import (
	"strings"
)

// FieldType defines the supported config value types in northbound schema.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeBool   FieldType = "bool"
)

// Well-known keys with special handling in the normalizer and validator.
const (
	KeyUploadIntervalMs     = "uploadIntervalMs"
	KeyReportIntervalMs     = "reportIntervalMs"
	KeyQOS                  = "qos"
	KeyGatewayMode          = "gatewayMode"
	KeyAlarmFlushIntervalMs = "alarmFlushIntervalMs"
	KeyAlarmBatchSize       = "alarmBatchSize"
	KeyAlarmQueueSize       = "alarmQueueSize"
	KeyRealtimeQueueSize    = "realtimeQueueSize"
)

// Field describes one config field in Terraform SDK Schema-like style.
type Field struct {
	Key         string      `json:"key" yaml:"key"`
	Label       string      `json:"label" yaml:"label"`
	Type        FieldType   `json:"type" yaml:"type"`
	Required    bool        `json:"required" yaml:"required"`
	Optional    bool        `json:"optional" yaml:"optional"`
	Default     interface{} `json:"default" yaml:"default"`
	Description string      `json:"description" yaml:"description"`
}

// DisplayLabel falls back to the key when the label is blank.
func (f Field) DisplayLabel() string {
	if label := strings.TrimSpace(f.Label); label != "" {
		return label
	}
	return f.Key
}

var builtinTables = map[string][]Field{
	"mqtt":    MQTTConfigSchema,
	"pandax":  PandaXConfigSchema,
	"ithings": IThingsConfigSchema,
	"sagoo":   SagooConfigSchema,
	"xunji":   SagooConfigSchema,
}

// SupportedTypes lists the connector types with a built-in schema.
func SupportedTypes() []string {
	return []string{"mqtt", "pandax", "ithings", "sagoo"}
}

// FieldsByType returns a copy of the built-in schema for nbType.
func FieldsByType(nbType string) ([]Field, bool) {
	fields, ok := builtinTables[strings.ToLower(strings.TrimSpace(nbType))]
	if !ok {
		return nil, false
	}
	return Clone(fields), true
}

// Clone copies a field list so callers can never mutate a shared table.
func Clone(fields []Field) []Field {
	if len(fields) == 0 {
		return []Field{}
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Lookup finds the descriptor for key.
func Lookup(fields []Field, key string) (Field, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether the schema declares key.
func Has(fields []Field, key string) bool {
	_, ok := Lookup(fields, key)
	return ok
}

// Keys returns the schema keys in declaration order.
func Keys(fields []Field) []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	return keys
}

func requiredString(key, label, desc string) Field {
	return Field{Key: key, Label: label, Type: FieldTypeString, Required: true, Default: "", Description: desc}
}

func optionalString(key, label, def, desc string) Field {
	return Field{Key: key, Label: label, Type: FieldTypeString, Optional: true, Default: def, Description: desc}
}

func optionalInt(key, label string, def int, desc string) Field {
	return Field{Key: key, Label: label, Type: FieldTypeInt, Optional: true, Default: def, Description: desc}
}

func optionalBool(key, label string, def bool, desc string) Field {
	return Field{Key: key, Label: label, Type: FieldTypeBool, Optional: true, Default: def, Description: desc}
}

// 各平台共用的 MQTT 连接参数与插件队列参数
func qosField() Field {
	return optionalInt(KeyQOS, "QOS", 0, "范围 0~2")
}

func retainField() Field {
	return optionalBool("retain", "Retain", false, "MQTT retain 标记")
}

func keepAliveField() Field {
	return optionalInt("keepAlive", "KeepAlive(秒)", 60, "MQTT 心跳间隔")
}

func connectTimeoutField() Field {
	return optionalInt("connectTimeout", "连接超时(秒)", 10, "MQTT 连接超时")
}

func uploadIntervalField(desc string) Field {
	return optionalInt(KeyUploadIntervalMs, "上传周期(ms)", 5000, desc)
}

func queueFields() []Field {
	return []Field{
		optionalInt(KeyAlarmFlushIntervalMs, "报警刷新(ms)", 2000, "报警批量发送周期"),
		optionalInt(KeyAlarmBatchSize, "报警批量条数", 20, "每次发送报警条数"),
		optionalInt(KeyAlarmQueueSize, "报警队列长度", 1000, "超过后丢弃最旧"),
		optionalInt(KeyRealtimeQueueSize, "实时队列长度", 1000, "超过后丢弃最旧"),
		optionalInt("commandQueueSize", "命令队列长度", 1000, "超过后丢弃最旧"),
	}
}
