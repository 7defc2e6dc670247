/*
Package salesman – schema attribute normalization.

A raw attribute tree maps field names to either a leaf definition or a nested
namespace. Leaves are `true` (column named after the path), a string (the
column name) or an options map holding a column or ref key.
*/
package salesman

import (
	"fmt"
)

const (
	defaultColumnKey = "column"
	defaultRefKey    = "ref"
	collectionKey    = "collection"
)

// AttributeConfig selects the keys that mark a leaf in raw attribute maps.
type AttributeConfig struct {
	ColumnKey string `yaml:"columnKey,omitempty"`
	RefKey    string `yaml:"refKey,omitempty"`
}

func (c AttributeConfig) withDefaults() AttributeConfig {
	if c.ColumnKey == "" {
		c.ColumnKey = defaultColumnKey
	}
	if c.RefKey == "" {
		c.RefKey = defaultRefKey
	}
	return c
}

// FieldDef is a normalized field definition. Exactly one of Column and Ref is
// the primary marker; Options keeps any other keys of the raw definition.
type FieldDef struct {
	Column     string
	Ref        string
	Collection bool
	Options    map[string]any
}

// IsRelationship reports whether the field points at another schema.
func (f *FieldDef) IsRelationship() bool { return f.Ref != "" }

func (f *FieldDef) clone() *FieldDef {
	c := *f
	if f.Options != nil {
		c.Options = make(map[string]any, len(f.Options))
		for k, v := range f.Options {
			c.Options[k] = v
		}
	}
	return &c
}

// Attributes is a flat field-path → definition map. No key is a strict
// prefix (at a dot boundary) of another.
type Attributes map[string]*FieldDef

// Fields implements Definition.
func (a Attributes) Fields() Attributes { return a }

// Columns returns field path → column for every column field.
func (a Attributes) Columns() map[string]string {
	out := make(map[string]string, len(a))
	for path, def := range a {
		if def.Column != "" {
			out[path] = def.Column
		}
	}
	return out
}

// Clone deep-copies the attribute table.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v.clone()
	}
	return out
}

// fieldInput is the raw definition of one attribute node, discriminated once
// at the boundary.
type fieldInput interface{ isFieldInput() }

// markerInput is a bare `true`: the column is named after the field path.
type markerInput struct{}

// columnInput is a bare column name.
type columnInput string

// optionsInput is a definition map that may or may not be a leaf.
type optionsInput map[string]any

func (markerInput) isFieldInput()  {}
func (columnInput) isFieldInput()  {}
func (optionsInput) isFieldInput() {}

func classifyField(path string, raw any) (fieldInput, error) {
	switch v := raw.(type) {
	case bool:
		if v {
			return markerInput{}, nil
		}
	case string:
		return columnInput(v), nil
	case map[string]any:
		return optionsInput(v), nil
	}
	return nil, NewError(fmt.Sprintf("'%s' has an invalid definition", path),
		WithCode(ErrInvalidDefinition), WithContext(map[string]any{"path": path, "value": raw}))
}

// NormalizeField turns one raw attribute node into a FieldDef. It returns
// (nil, nil) when the node is a namespace rather than a field.
func NormalizeField(path string, raw any, cfg AttributeConfig) (*FieldDef, error) {
	cfg = cfg.withDefaults()
	in, err := classifyField(path, raw)
	if err != nil {
		return nil, err
	}

	var opts map[string]any
	switch v := in.(type) {
	case markerInput:
		opts = map[string]any{cfg.ColumnKey: path}
	case columnInput:
		opts = map[string]any{cfg.ColumnKey: string(v)}
	case optionsInput:
		opts = v
	}

	column, err := stringOption(path, opts, cfg.ColumnKey)
	if err != nil {
		return nil, err
	}
	ref, err := stringOption(path, opts, cfg.RefKey)
	if err != nil {
		return nil, err
	}
	if column == "" && ref == "" {
		return nil, nil
	}

	def := &FieldDef{Column: column, Ref: ref}
	for k, v := range opts {
		switch k {
		case cfg.ColumnKey, cfg.RefKey:
			continue
		case collectionKey:
			if b, ok := v.(bool); ok {
				def.Collection = b
				continue
			}
		}
		if def.Options == nil {
			def.Options = map[string]any{}
		}
		def.Options[k] = v
	}
	return def, nil
}

func stringOption(path string, opts map[string]any, key string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", NewError(fmt.Sprintf("'%s' has an invalid %s value", path, key),
			WithCode(ErrInvalidDefinition), WithContext(map[string]any{"path": path, key: v}))
	}
	return s, nil
}

// NormalizeAttributes flattens a raw attribute tree into Attributes.
func NormalizeAttributes(raw map[string]any, cfg AttributeConfig) (Attributes, error) {
	out := Attributes{}
	if err := normalizeInto(out, raw, "", cfg.withDefaults()); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeInto(out Attributes, raw map[string]any, prefix string, cfg AttributeConfig) error {
	for _, key := range sortedKeys(raw) {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		value := raw[key]
		def, err := NormalizeField(path, value, cfg)
		if err != nil {
			return err
		}
		if def != nil {
			out[path] = def
			continue
		}
		if m, ok := value.(map[string]any); ok {
			if err := normalizeInto(out, m, path, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}
