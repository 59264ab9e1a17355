package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrEmptySchema is returned when a provider yields no fields for a type.
	ErrEmptySchema = errors.New("northbound schema has no fields")
	// ErrUnsupportedType is returned for types without any schema.
	ErrUnsupportedType = errors.New("unsupported northbound type schema")
)

// Provider returns the ordered field list for a connector type.
type Provider interface {
	Fields(ctx context.Context, nbType string) ([]Field, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, nbType string) ([]Field, error)

func (f ProviderFunc) Fields(ctx context.Context, nbType string) ([]Field, error) {
	return f(ctx, nbType)
}

// Builtin serves the compiled-in tables, optionally overlaid per type from a
// YAML schema file.
type Builtin struct {
	overlay map[string][]Field
}

// NewBuiltin returns a provider over the compiled-in tables.
func NewBuiltin() *Builtin {
	return &Builtin{overlay: map[string][]Field{}}
}

type schemaFile struct {
	Schemas map[string][]Field `yaml:"schemas"`
}

// LoadBuiltinFile reads a YAML schema file whose per-type lists replace the
// compiled-in tables. A blank path yields the plain built-in provider.
func LoadBuiltinFile(path string) (*Builtin, error) {
	b := NewBuiltin()
	if strings.TrimSpace(path) == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	if err := b.Overlay(data); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return b, nil
}

// Overlay merges YAML schema definitions into the provider.
func (b *Builtin) Overlay(data []byte) error {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for nbType, fields := range file.Schemas {
		nbType = strings.ToLower(strings.TrimSpace(nbType))
		if nbType == "" {
			continue
		}
		if err := checkFields(fields); err != nil {
			return fmt.Errorf("schema %s: %w", nbType, err)
		}
		b.overlay[nbType] = Clone(fields)
	}
	return nil
}

// Fields implements Provider.
func (b *Builtin) Fields(_ context.Context, nbType string) ([]Field, error) {
	key := strings.ToLower(strings.TrimSpace(nbType))
	if fields, ok := b.overlay[key]; ok {
		return Clone(fields), nil
	}
	if fields, ok := FieldsByType(key); ok {
		return fields, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, nbType)
}

func checkFields(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Key) == "" {
			return fmt.Errorf("field #%d has empty key", i+1)
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("duplicate field key %q", f.Key)
		}
		seen[f.Key] = struct{}{}
		switch f.Type {
		case FieldTypeString, FieldTypeInt, FieldTypeBool:
		default:
			return fmt.Errorf("field %q has unsupported type %q", f.Key, f.Type)
		}
	}
	return nil
}
