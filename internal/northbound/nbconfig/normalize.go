package nbconfig

import (
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

const (
	minQOS = 0
	maxQOS = 2
)

// Normalize merges raw onto the schema defaults and coerces every value to
// its declared type. The result holds exactly the schema's keys; raw and
// fields are left untouched.
func Normalize(raw map[string]interface{}, fields []schema.Field, uploadFallbackMs int) Config {
	out := make(Config, len(fields))
	for _, f := range fields {
		out[f.Key] = coerceDefault(f)
	}

	for _, f := range fields {
		v, ok := raw[f.Key]
		if !ok || isEmptyValue(v) {
			continue
		}
		out[f.Key] = coerce(f, v)
	}

	if schema.Has(fields, schema.KeyUploadIntervalMs) {
		if ms := toIntOr(out[schema.KeyUploadIntervalMs], 0); ms <= 0 {
			out[schema.KeyUploadIntervalMs] = recoverUploadInterval(raw, uploadFallbackMs)
		}
	}

	if schema.Has(fields, schema.KeyQOS) {
		out[schema.KeyQOS] = clampInt(toIntOr(out[schema.KeyQOS], minQOS), minQOS, maxQOS)
	}

	return out
}

func recoverUploadInterval(raw map[string]interface{}, fallbackMs int) int {
	for _, key := range []string{schema.KeyUploadIntervalMs, schema.KeyReportIntervalMs} {
		if ms, ok := toInt(raw[key]); ok && ms > 0 {
			return ms
		}
	}
	return fallbackMs
}

func coerceDefault(f schema.Field) interface{} {
	switch f.Type {
	case schema.FieldTypeInt:
		return toIntOr(f.Default, 0)
	case schema.FieldTypeBool:
		return toBool(f.Default)
	default:
		return toString(f.Default)
	}
}

func coerce(f schema.Field, v interface{}) interface{} {
	switch f.Type {
	case schema.FieldTypeInt:
		return toIntOr(v, toIntOr(f.Default, 0))
	case schema.FieldTypeBool:
		return toBool(v)
	default:
		return toString(v)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
