// Package nbtype 北向连接器类型表：规范化、别名、显示名以及是否走 schema 动态表单。
package nbtype

import "strings"

const (
	TypeMQTT    = "mqtt"
	TypePandaX  = "pandax"
	TypeIThings = "ithings"
	TypeSagoo   = "sagoo"

	LegacyTypeXunJi = "xunji"
)

var (
	defaultTypes        = []string{TypeMQTT, TypePandaX, TypeIThings, TypeSagoo}
	defaultSchemaDriven = []string{TypePandaX, TypeIThings, TypeSagoo}
	defaultAliases      = map[string]string{LegacyTypeXunJi: TypeSagoo}
	defaultLabels       = map[string]string{
		TypeMQTT:    "MQTT",
		TypePandaX:  "PandaX",
		TypeIThings: "iThings",
		TypeSagoo:   "Sagoo",
	}
)

// Registry is an immutable lookup table. The zero value is not usable; build
// one with New or use Default.
type Registry struct {
	types        []string
	supported    map[string]struct{}
	schemaDriven map[string]struct{}
	drivenRaw    []string
	aliases      map[string]string
	labels       map[string]string
}

// Option customizes a Registry at construction time.
type Option func(*Registry)

// WithSchemaDriven replaces the schema-driven type set. Entries are normalized
// against the final registry aliases, whatever the option order; blank
// entries are ignored.
func WithSchemaDriven(types ...string) Option {
	return func(r *Registry) {
		r.drivenRaw = append([]string{}, types...)
	}
}

// WithAlias maps a deprecated type name onto its replacement.
func WithAlias(alias, target string) Option {
	return func(r *Registry) {
		alias = strings.ToLower(strings.TrimSpace(alias))
		target = strings.ToLower(strings.TrimSpace(target))
		if alias == "" || target == "" {
			return
		}
		aliases := make(map[string]string, len(r.aliases)+1)
		for k, v := range r.aliases {
			aliases[k] = v
		}
		aliases[alias] = target
		r.aliases = aliases
	}
}

// New builds a registry seeded with the gateway's connector types.
func New(opts ...Option) *Registry {
	r := &Registry{
		types:        append([]string(nil), defaultTypes...),
		supported:    toSet(defaultTypes),
		schemaDriven: toSet(defaultSchemaDriven),
		aliases:      defaultAliases,
		labels:       defaultLabels,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.drivenRaw != nil {
		r.schemaDriven = make(map[string]struct{}, len(r.drivenRaw))
		for _, t := range r.drivenRaw {
			if n := r.Normalize(t); n != "" {
				r.schemaDriven[n] = struct{}{}
			}
		}
		r.drivenRaw = nil
	}
	return r
}

var defaultRegistry = New()

// Default returns the shared registry with the built-in schema-driven set.
func Default() *Registry {
	return defaultRegistry
}

// Normalize lower-cases and trims raw, resolving deprecated aliases. Unknown
// values pass through in normalized form.
func (r *Registry) Normalize(raw string) string {
	nbType := strings.ToLower(strings.TrimSpace(raw))
	if target, ok := r.aliases[nbType]; ok {
		return target
	}
	return nbType
}

// IsSchemaDriven reports whether the type is edited through a schema form.
func (r *Registry) IsSchemaDriven(raw string) bool {
	_, ok := r.schemaDriven[r.Normalize(raw)]
	return ok
}

// IsSupported reports whether the type is one of the known connector types.
func (r *Registry) IsSupported(raw string) bool {
	_, ok := r.supported[r.Normalize(raw)]
	return ok
}

// SupportedTypes returns a copy of the known connector types in display order.
func (r *Registry) SupportedTypes() []string {
	return append([]string(nil), r.types...)
}

// SchemaDrivenTypes returns the schema-driven types in display order.
func (r *Registry) SchemaDrivenTypes() []string {
	out := make([]string, 0, len(r.schemaDriven))
	for _, t := range r.types {
		if _, ok := r.schemaDriven[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// DisplayName returns the human readable label; unknown types display as
// their upper-cased raw string.
func (r *Registry) DisplayName(raw string) string {
	if label, ok := r.labels[r.Normalize(raw)]; ok {
		return label
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

func Normalize(raw string) string {
	return defaultRegistry.Normalize(raw)
}

func IsSchemaDriven(raw string) bool {
	return defaultRegistry.IsSchemaDriven(raw)
}

func SupportedTypes() []string {
	return defaultRegistry.SupportedTypes()
}

func IsSupported(raw string) bool {
	return defaultRegistry.IsSupported(raw)
}

func DisplayName(raw string) string {
	return defaultRegistry.DisplayName(raw)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
