/*
Package salesman – schema definitions.

A Schema names a remote object and maps application field paths to its
columns. After construction only hooks, methods, statics and new paths can be
added.
*/
package salesman

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Record is a generic property map passed to and returned from model operations.
type Record = map[string]any

// MethodFunc is an instance method registered with Schema.Method.
type MethodFunc func(ctx context.Context, m *Model, record Record, args ...any) (any, error)

// StaticFunc is a model-level function registered with Schema.Static.
type StaticFunc func(ctx context.Context, m *Model, args ...any) (any, error)

// Plugin extends a schema; config is passed through untouched.
type Plugin func(s *Schema, config any) error

// Schema is the static mapping of one remote object.
type Schema struct {
	objectName string
	config     AttributeConfig

	mu         sync.RWMutex
	attributes Attributes
	hooks      map[string]*hookSet
	methods    map[string]MethodFunc
	statics    map[string]StaticFunc
}

// NewSchema normalizes raw attributes for objectName. An optional config
// selects custom column/ref keys.
func NewSchema(objectName string, attributes map[string]any, config ...AttributeConfig) (*Schema, error) {
	if objectName == "" {
		return nil, NewArgError("schema is missing an object name")
	}
	var cfg AttributeConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg = cfg.withDefaults()
	attrs, err := NormalizeAttributes(attributes, cfg)
	if err != nil {
		return nil, err
	}
	return &Schema{
		objectName: objectName,
		config:     cfg,
		attributes: attrs,
		hooks:      map[string]*hookSet{},
		methods:    map[string]MethodFunc{},
		statics:    map[string]StaticFunc{},
	}, nil
}

// MustSchema is NewSchema that panics on error, for package-level schemas.
func MustSchema(objectName string, attributes map[string]any, config ...AttributeConfig) *Schema {
	s, err := NewSchema(objectName, attributes, config...)
	if err != nil {
		panic(err.Error())
	}
	return s
}

// ObjectName is the remote object the schema maps.
func (s *Schema) ObjectName() string { return s.objectName }

// Attributes returns a copy of the normalized attribute table.
func (s *Schema) Attributes() Attributes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attributes.Clone()
}

// Path returns a copy of the definition of one field path.
func (s *Schema) Path(fieldPath string) (*FieldDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.attributes[fieldPath]
	if !ok {
		return nil, false
	}
	return def.clone(), true
}

// SetPath adds a field or extends the options of an existing one. The column
// of an existing field cannot be changed, and a new path may neither extend
// nor shadow an existing one. Models that already cached their description
// pick up the change after ClearCache.
func (s *Schema) SetPath(fieldPath string, definition map[string]any) (*FieldDef, error) {
	if definition == nil {
		return nil, NewError(fmt.Sprintf("invalid field definition for %s", fieldPath),
			WithCode(ErrInvalidDefinition))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if field, ok := s.attributes[fieldPath]; ok {
		if _, has := definition[s.config.ColumnKey]; has {
			return nil, NewError(fmt.Sprintf("cannot override the '%s' of an already defined field: %s",
				s.config.ColumnKey, fieldPath), WithCode(ErrInvalidPath))
		}
		merged := field.clone()
		for k, v := range definition {
			switch k {
			case s.config.RefKey:
				ref, ok := v.(string)
				if !ok {
					return nil, NewError(fmt.Sprintf("'%s' has an invalid %s value", fieldPath, k),
						WithCode(ErrInvalidDefinition))
				}
				merged.Ref = ref
			case collectionKey:
				if b, ok := v.(bool); ok {
					merged.Collection = b
					continue
				}
				fallthrough
			default:
				if merged.Options == nil {
					merged.Options = map[string]any{}
				}
				merged.Options[k] = v
			}
		}
		s.attributes[fieldPath] = merged
		return merged.clone(), nil
	}

	def, err := NormalizeField(fieldPath, definition, s.config)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, NewError(fmt.Sprintf("invalid field definition given for %s", fieldPath),
			WithCode(ErrInvalidDefinition))
	}
	for key := range s.attributes {
		if isPathPrefix(key, fieldPath) {
			return nil, NewError(fmt.Sprintf("invalid path: %s cannot be extended to %s", key, fieldPath),
				WithCode(ErrInvalidPath))
		}
		if isPathPrefix(fieldPath, key) {
			return nil, NewError(fmt.Sprintf("invalid path: %s cannot be reduced to %s", key, fieldPath),
				WithCode(ErrInvalidPath))
		}
	}
	s.attributes[fieldPath] = def
	return def.clone(), nil
}

// isPathPrefix reports whether prefix names a namespace containing path.
func isPathPrefix(prefix, path string) bool {
	return strings.HasPrefix(path, prefix+".")
}

// Pre registers a hook run before the named operation.
func (s *Schema) Pre(hookName string, fn HookFunc) *Schema {
	if fn == nil {
		panic(fmt.Sprintf("salesman: invalid hook method given in pre '%s'", hookName))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hookSet(hookName).pre = append(s.hookSet(hookName).pre, fn)
	return s
}

// Post registers a hook run after the named operation.
func (s *Schema) Post(hookName string, fn HookFunc) *Schema {
	if fn == nil {
		panic(fmt.Sprintf("salesman: invalid hook method given in post '%s'", hookName))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hookSet(hookName).post = append(s.hookSet(hookName).post, fn)
	return s
}

func (s *Schema) hookSet(name string) *hookSet {
	h := s.hooks[name]
	if h == nil {
		h = &hookSet{}
		s.hooks[name] = h
	}
	return h
}

// CallHook runs op wrapped by the hooks of hookNames (outermost first) and
// returns the value produced by the last stage.
func (s *Schema) CallHook(ctx context.Context, hookNames []string, value any, op HookFunc) (any, error) {
	s.mu.RLock()
	stages := hookChain(s.hooks, hookNames, op)
	s.mu.RUnlock()
	return runSequence(ctx, stages, value)
}

// Method registers an instance method.
func (s *Schema) Method(name string, fn MethodFunc) *Schema {
	if fn == nil {
		panic(fmt.Sprintf("salesman: invalid method: %s is not a function", name))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = fn
	return s
}

// Static registers a model-level function.
func (s *Schema) Static(name string, fn StaticFunc) *Schema {
	if fn == nil {
		panic(fmt.Sprintf("salesman: invalid static method: %s is not a function", name))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statics[name] = fn
	return s
}

// Plugin applies p to the schema.
func (s *Schema) Plugin(p Plugin, config any) error {
	return p(s, config)
}

func (s *Schema) method(name string) (MethodFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.methods[name]
	return fn, ok
}

func (s *Schema) static(name string) (StaticFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.statics[name]
	return fn, ok
}
