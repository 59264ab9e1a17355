// Package nbconfig reconciles northbound connector configs against their
// field schema: coercion and defaults, validation, and the bridge between
// the nested config JSON and the legacy flat record columns.
package nbconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ErrInvalidJSON wraps config text that is not a JSON object.
var ErrInvalidJSON = errors.New("config is not a valid JSON object")

// Config is a normalized connector config. Values are string, int or bool.
type Config map[string]interface{}

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Map returns the config as a plain map.
func (c Config) Map() map[string]interface{} {
	return map[string]interface{}(c.Clone())
}

// JSON serializes the config with sorted keys.
func (c Config) JSON() (string, error) {
	if c == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]interface{}(c))
	if err != nil {
		return "", fmt.Errorf("marshal northbound config: %w", err)
	}
	return string(data), nil
}

// ParseJSON parses config text into an object. Blank text is an empty object.
func ParseJSON(text string) (map[string]interface{}, error) {
	if strings.TrimSpace(text) == "" {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	if out == nil {
		return map[string]interface{}{}, nil
	}
	return out, nil
}

// SafeParseJSON degrades any parse failure to an empty object.
func SafeParseJSON(text string) map[string]interface{} {
	out, err := ParseJSON(text)
	if err != nil {
		return map[string]interface{}{}
	}
	return out
}

// ResolveString returns the first non-blank value among keys, trimmed.
func ResolveString(cfg map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := cfg[key]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(toString(v)); s != "" {
			return s
		}
	}
	return ""
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// parseInt accepts a leading optionally-signed decimal integer, so "12ms" is
// 12 and "08" is 8.
func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		return parseInt(val)
	case json.Number:
		return parseInt(val.String())
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int(val), true
	case float32:
		return toInt(float64(val))
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func toIntOr(v interface{}, fallback int) int {
	if n, ok := toInt(v); ok {
		return n
	}
	return fallback
}

func toBool(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true
		}
		return false
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f != 0
	}
	return true
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
