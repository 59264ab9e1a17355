package nbconfig

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// FieldErrors maps a field key to its error message. Empty means valid.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	if len(e) == 0 {
		return "northbound config valid"
	}
	parts := make([]string, 0, len(e))
	for _, key := range e.Keys() {
		parts = append(parts, key+": "+e[key])
	}
	return "invalid northbound config: " + strings.Join(parts, "; ")
}

// Keys returns the failing keys in sorted order.
func (e FieldErrors) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Err returns nil when there are no errors.
func (e FieldErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

var positiveKeys = []string{
	schema.KeyUploadIntervalMs,
	schema.KeyAlarmFlushIntervalMs,
	schema.KeyAlarmBatchSize,
	schema.KeyAlarmQueueSize,
	schema.KeyRealtimeQueueSize,
}

// Validate checks cfg against fields and reports every violation.
func Validate(cfg map[string]interface{}, fields []schema.Field) FieldErrors {
	errs := FieldErrors{}

	for _, f := range fields {
		if !f.Required {
			continue
		}
		v, present := cfg[f.Key]
		switch f.Type {
		case schema.FieldTypeString:
			if !present || strings.TrimSpace(toString(v)) == "" {
				errs[f.Key] = fmt.Sprintf("%s 为必填项", f.DisplayLabel())
			}
		case schema.FieldTypeInt:
			if !present || strings.TrimSpace(toString(v)) == "" {
				errs[f.Key] = fmt.Sprintf("%s 为必填项", f.DisplayLabel())
			} else if _, ok := toInt(v); !ok {
				errs[f.Key] = fmt.Sprintf("%s 必须是整数", f.DisplayLabel())
			}
		case schema.FieldTypeBool:
			if !present || v == nil {
				errs[f.Key] = fmt.Sprintf("%s 为必填项", f.DisplayLabel())
			}
		}
	}

	if schema.Has(fields, schema.KeyQOS) {
		qos, ok := toInt(cfg[schema.KeyQOS])
		if !ok || qos < minQOS || qos > maxQOS {
			errs[schema.KeyQOS] = "QOS 需在 0~2 之间"
		}
	}

	if schema.Has(fields, schema.KeyGatewayMode) && !toBool(cfg[schema.KeyGatewayMode]) {
		errs[schema.KeyGatewayMode] = "仅支持网关模式 (gatewayMode=true)"
	}

	for _, key := range positiveKeys {
		f, ok := schema.Lookup(fields, key)
		if !ok {
			continue
		}
		if n, ok := toInt(cfg[key]); !ok || n <= 0 {
			errs[key] = fmt.Sprintf("%s 必须大于 0", f.DisplayLabel())
		}
	}

	return errs
}
