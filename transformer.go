/*
Package salesman – field transformer.

A Transformer maps records between the application shape (keyed by field
paths) and the remote shape (keyed by column paths).
*/
package salesman

// Transformer holds a fixed field path → column path table.
type Transformer struct {
	columns      map[string]string
	fields       []string // sorted field paths
	known        map[string]bool
	byColumn     map[string]string
	defaultValue any
}

// TransformerOption configures a Transformer.
type TransformerOption func(*transformerConfig)

type transformerConfig struct {
	defaultValue any
	sourceKey    string
}

// WithDefaultValue sets the value written for absent paths when filling.
func WithDefaultValue(v any) TransformerOption {
	return func(c *transformerConfig) { c.defaultValue = v }
}

// WithSourceKey makes NewAttributeTransformer read the column path from the
// named key of FieldDef.Options instead of FieldDef.Column.
func WithSourceKey(key string) TransformerOption {
	return func(c *transformerConfig) { c.sourceKey = key }
}

// NewTransformer builds a Transformer from field path → column path.
func NewTransformer(columns map[string]string, opts ...TransformerOption) *Transformer {
	cfg := transformerConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	return newTransformer(columns, cfg)
}

// NewAttributeTransformer builds a Transformer from the column fields of attrs.
// Relationship fields are ignored.
func NewAttributeTransformer(attrs Attributes, opts ...TransformerOption) *Transformer {
	cfg := transformerConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	columns := map[string]string{}
	for path, def := range attrs {
		if def.IsRelationship() {
			continue
		}
		column := def.Column
		if cfg.sourceKey != "" {
			column, _ = def.Options[cfg.sourceKey].(string)
		}
		if column != "" {
			columns[path] = column
		}
	}
	return newTransformer(columns, cfg)
}

func newTransformer(columns map[string]string, cfg transformerConfig) *Transformer {
	t := &Transformer{
		columns:      make(map[string]string, len(columns)),
		known:        make(map[string]bool, len(columns)),
		byColumn:     make(map[string]string, len(columns)),
		defaultValue: cfg.defaultValue,
	}
	for path, column := range columns {
		t.columns[path] = column
		t.known[path] = true
	}
	t.fields = sortedKeys(t.columns)
	for _, path := range t.fields {
		if _, dup := t.byColumn[t.columns[path]]; !dup {
			t.byColumn[t.columns[path]] = path
		}
	}
	return t
}

// Fields returns the known field paths in sorted order.
func (t *Transformer) Fields() []string {
	return append([]string(nil), t.fields...)
}

// Column returns the column path mapped to a field path.
func (t *Transformer) Column(field string) (string, bool) {
	c, ok := t.columns[field]
	return c, ok
}

// Format converts an application record into the remote column shape. With
// fill, absent fields are written as the default value; without it they are
// left out.
func (t *Transformer) Format(record map[string]any, fill bool) map[string]any {
	return t.transform(record, fill, false)
}

// Unformat converts a remote row back into the application shape.
func (t *Transformer) Unformat(record map[string]any, fill bool) map[string]any {
	return t.transform(record, fill, true)
}

func (t *Transformer) transform(record map[string]any, fill, reverse bool) map[string]any {
	out := map[string]any{}
	for _, field := range t.fields {
		getKey, setKey := field, t.columns[field]
		if reverse {
			getKey, setKey = setKey, getKey
		}
		v, ok := LookupPath(record, getKey)
		if !ok {
			if !fill {
				continue
			}
			v = t.defaultValue
		}
		SetPath(out, setKey, v)
	}
	return out
}

// FormatKeys rewrites the keys of a query fragment (select, where or sort)
// from field paths to column paths. Keys that are not known fields are
// expanded as patterns; every matching field contributes its column with the
// same value. Keys matching nothing are dropped.
func (t *Transformer) FormatKeys(fragment map[string]any) map[string]any {
	out := map[string]any{}
	for _, key := range sortedKeys(fragment) {
		for _, field := range expandKey(key, t.known, t.fields) {
			out[t.columns[field]] = fragment[key]
		}
	}
	return out
}

// UnformatKeys rewrites column-path keys back to field paths. Unknown columns
// are dropped.
func (t *Transformer) UnformatKeys(fragment map[string]any) map[string]any {
	out := map[string]any{}
	for column, v := range fragment {
		if field, ok := t.byColumn[column]; ok {
			out[field] = v
		}
	}
	return out
}
