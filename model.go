/*
Package salesman – Model type.

A Model binds a Schema to the remote object it names. The remote description
is fetched on first use, resolved against the schema and cached until
ClearCache; every operation reads the cached resolution.
*/
package salesman

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cloudxsgmbh/salesman-go/internal/uid"
	"golang.org/x/sync/singleflight"
)

// Hook names used by model operations. Create and update run inside "save".
const (
	HookSave   = "save"
	HookCreate = "create"
	HookUpdate = "update"
	HookDelete = "delete"
	HookFind   = "find"
)

// Model is the operational handle of one registered schema.
type Model struct {
	Name string

	schema *Schema
	sm     *Salesman
	log    Logger

	mu         sync.Mutex
	cached     *resolved
	generation uint64
	group      singleflight.Group
}

// resolved is one description of the remote object with everything derived
// from it.
type resolved struct {
	description *Description
	definition  *ResolvedDefinition
	transformer *Transformer
	creatable   *Transformer
	updatable   *Transformer
}

func newModel(sm *Salesman, name string, schema *Schema) *Model {
	return &Model{
		Name:   name,
		schema: schema,
		sm:     sm,
		log:    sm.log,
	}
}

// ObjectName is the remote object the model maps.
func (m *Model) ObjectName() string { return m.schema.ObjectName() }

// Schema returns the schema the model was registered with.
func (m *Model) Schema() *Schema { return m.schema }

// ─── Describe ─────────────────────────────────────────────────────────────────

// Describe returns the normalized description of the remote object.
func (m *Model) Describe(ctx context.Context) (*Description, error) {
	r, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return r.description, nil
}

// Definition returns the schema resolved against the remote description.
func (m *Model) Definition(ctx context.Context) (*ResolvedDefinition, error) {
	r, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return r.definition, nil
}

// Transformer returns the field transformer bound to the readable columns.
func (m *Model) Transformer(ctx context.Context) (*Transformer, error) {
	r, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return r.transformer, nil
}

// resolve returns the cached resolution or loads it. Concurrent callers of
// one cache generation share a single load; a caller whose ctx ends stops
// waiting without cancelling the load for the others.
func (m *Model) resolve(ctx context.Context) (*resolved, error) {
	m.mu.Lock()
	if m.cached != nil {
		r := m.cached
		m.mu.Unlock()
		return r, nil
	}
	gen := m.generation
	m.mu.Unlock()

	ch := m.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		r, err := m.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.generation == gen {
			m.cached = r
		} else {
			m.log.Trace(fmt.Sprintf(`Discarding stale describe of "%s"`, m.Name), nil)
		}
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*resolved), nil
	}
}

func (m *Model) load(ctx context.Context) (*resolved, error) {
	raw, err := m.rawDescribe(ctx)
	if err != nil {
		return nil, err
	}
	object := m.ObjectName()
	desc := NormalizeDescribe(raw)
	def, err := resolveDefinition(object, m.schema.Attributes(), desc, m.sm.GetModel)
	if err != nil {
		m.log.Error(fmt.Sprintf(`Cannot resolve "%s"`, m.Name), map[string]any{"err": err.Error()})
		return nil, err
	}

	errs := def.Errors()
	for _, path := range sortedKeys(errs) {
		m.log.Error(fmt.Sprintf(`Field "%s" of "%s" is unusable`, path, m.Name),
			map[string]any{"err": errs[path].Error()})
	}

	readable := map[string]string{}
	creatable := map[string]string{}
	updatable := map[string]string{}
	for path, f := range def.Columns {
		if f.Readable() {
			readable[path] = f.Column
		}
		if f.Creatable() {
			creatable[path] = f.Column
		}
		if f.Updatable() {
			updatable[path] = f.Column
		}
	}
	return &resolved{
		description: desc,
		definition:  def,
		transformer: NewTransformer(readable),
		creatable:   NewTransformer(creatable),
		updatable:   NewTransformer(updatable),
	}, nil
}

// rawDescribe reads the describe payload from the store, falling back to the
// remote API. Store failures are logged and never fail the describe.
func (m *Model) rawDescribe(ctx context.Context) (*RawDescribe, error) {
	object := m.ObjectName()
	store := m.sm.store
	if store != nil {
		raw, err := store.Load(ctx, object)
		if err != nil {
			m.log.Error(fmt.Sprintf(`Describe store load failed for "%s"`, object), map[string]any{"err": err.Error()})
		} else if raw != nil {
			m.log.Trace(fmt.Sprintf(`Loaded describe of "%s" from store`, object), nil)
			return raw, nil
		}
	}

	sess, err := m.sm.session(ctx)
	if err != nil {
		return nil, err
	}
	m.log.Trace(fmt.Sprintf(`Salesman "describe" "%s"`, object), nil)
	raw, err := sess.SObject(object).Describe(ctx)
	if err != nil {
		return nil, remoteError("describe", object, err)
	}
	if raw == nil {
		return nil, NewError(fmt.Sprintf("describe of %s returned nothing", object), WithCode(ErrRemote))
	}
	if store != nil {
		if err := store.Save(ctx, object, raw); err != nil {
			m.log.Error(fmt.Sprintf(`Describe store save failed for "%s"`, object), map[string]any{"err": err.Error()})
		}
	}
	return raw, nil
}

// ClearCache drops the cached description, the remote client's describe cache
// and the stored payload. A load in flight still answers its callers but is
// not cached.
func (m *Model) ClearCache(ctx context.Context) error {
	m.mu.Lock()
	m.cached = nil
	m.generation++
	m.mu.Unlock()

	object := m.ObjectName()
	m.log.Trace(fmt.Sprintf(`Cleared describe cache of "%s"`, m.Name), nil)

	if conn := m.sm.Connection(); conn != nil {
		sess, err := conn.Session(ctx)
		if err != nil {
			return err
		}
		sess.SObject(object).ClearDescribeCache()
	}
	if m.sm.store != nil {
		return m.sm.store.Delete(ctx, object)
	}
	return nil
}

// ─── Create / Update / Delete ─────────────────────────────────────────────────

// Create inserts one record and returns its id. Fields the remote object
// cannot create are left out of the payload.
func (m *Model) Create(ctx context.Context, records ...Record) (string, error) {
	record, err := single(HookCreate, m.Name, records)
	if err != nil {
		return "", err
	}
	out, err := m.schema.CallHook(ctx, []string{HookSave, HookCreate}, record, func(ctx context.Context, v any) (any, error) {
		rec, err := recordOf(v)
		if err != nil {
			return nil, err
		}
		r, err := m.resolve(ctx)
		if err != nil {
			return nil, err
		}
		if !r.description.Creatable {
			return nil, m.denied(HookCreate)
		}
		payload := r.creatable.Format(rec, false)
		m.logDropped(HookCreate, rec, r.creatable)
		res, err := m.execute(ctx, HookCreate, payload, func(so SObject) (*SaveResult, error) {
			return so.Create(ctx, payload)
		})
		if err != nil {
			return nil, err
		}
		return res.ID, nil
	})
	if err != nil {
		return "", err
	}
	return idOf(HookCreate, out)
}

// Update writes the updatable fields of one record. The record must carry the
// field mapped to the Id column.
func (m *Model) Update(ctx context.Context, records ...Record) (string, error) {
	record, err := single(HookUpdate, m.Name, records)
	if err != nil {
		return "", err
	}
	out, err := m.schema.CallHook(ctx, []string{HookSave, HookUpdate}, record, func(ctx context.Context, v any) (any, error) {
		rec, err := recordOf(v)
		if err != nil {
			return nil, err
		}
		r, err := m.resolve(ctx)
		if err != nil {
			return nil, err
		}
		if !r.description.Updatable {
			return nil, m.denied(HookUpdate)
		}
		id, err := m.recordID(r, rec)
		if err != nil {
			return nil, err
		}
		payload := r.updatable.Format(rec, false)
		payload[IDColumn] = id
		m.logDropped(HookUpdate, rec, r.updatable)
		res, err := m.execute(ctx, HookUpdate, payload, func(so SObject) (*SaveResult, error) {
			return so.Update(ctx, payload)
		})
		if err != nil {
			return nil, err
		}
		if res.ID == "" {
			return id, nil
		}
		return res.ID, nil
	})
	if err != nil {
		return "", err
	}
	return idOf(HookUpdate, out)
}

// Delete removes one record by id.
func (m *Model) Delete(ctx context.Context, ids ...string) (string, error) {
	id, err := single(HookDelete, m.Name, ids)
	if err != nil {
		return "", err
	}
	out, err := m.schema.CallHook(ctx, []string{HookDelete}, id, func(ctx context.Context, v any) (any, error) {
		id, ok := v.(string)
		if !ok || id == "" {
			return nil, NewArgError(fmt.Sprintf(`delete on "%s" needs a non-empty id, got %T`, m.Name, v))
		}
		r, err := m.resolve(ctx)
		if err != nil {
			return nil, err
		}
		if !r.description.Deletable {
			return nil, m.denied(HookDelete)
		}
		res, err := m.execute(ctx, HookDelete, map[string]any{IDColumn: id}, func(so SObject) (*SaveResult, error) {
			return so.Destroy(ctx, id)
		})
		if err != nil {
			return nil, err
		}
		if res.ID == "" {
			return id, nil
		}
		return res.ID, nil
	})
	if err != nil {
		return "", err
	}
	return idOf(HookDelete, out)
}

// execute runs one remote write and checks its result.
func (m *Model) execute(ctx context.Context, op string, props map[string]any,
	fn func(SObject) (*SaveResult, error)) (*SaveResult, error) {

	sess, err := m.sm.session(ctx)
	if err != nil {
		return nil, err
	}
	object := m.ObjectName()
	opID := uid.New()
	m.log.Info(fmt.Sprintf(`Salesman "%s" "%s"`, op, m.Name),
		map[string]any{"op": op, "id": opID, "object": object, "properties": props})

	res, err := fn(sess.SObject(object))
	if err == nil {
		err = res.Err(op, object)
	}
	if err != nil {
		err = remoteError(op, object, err)
		m.log.Error(fmt.Sprintf(`Salesman "%s" "%s" failed`, op, m.Name),
			map[string]any{"op": op, "id": opID, "err": err.Error()})
		return nil, err
	}
	m.log.Data(fmt.Sprintf(`Salesman "%s" "%s" result`, op, m.Name), map[string]any{"id": opID, "result": res.ID})
	return res, nil
}

func (m *Model) recordID(r *resolved, rec Record) (string, error) {
	field := r.definition.IDField
	if field == "" {
		return "", NewArgError(fmt.Sprintf(`"%s" has no field mapped to %s`, m.Name, IDColumn))
	}
	v, _ := LookupPath(rec, field)
	id, ok := v.(string)
	if !ok || id == "" {
		return "", NewArgError(fmt.Sprintf(`update on "%s" requires a non-empty "%s"`, m.Name, field))
	}
	return id, nil
}

func (m *Model) denied(op string) error {
	return NewError(fmt.Sprintf("%s is not %s", m.ObjectName(), capability(op)),
		WithCode(ErrCapabilityDenied), WithContext(map[string]any{"model": m.Name, "op": op}))
}

func capability(op string) string {
	switch op {
	case HookCreate:
		return "creatable"
	case HookUpdate:
		return "updatable"
	}
	return "deletable"
}

// logDropped traces record fields that did not make it into a write.
func (m *Model) logDropped(op string, rec Record, writable *Transformer) {
	var dropped []string
	flat := Flatten(rec, nil)
	for _, path := range sortedKeys(flat) {
		if _, ok := writable.Column(path); !ok {
			dropped = append(dropped, path)
		}
	}
	if len(dropped) > 0 {
		m.log.Trace(fmt.Sprintf(`Salesman "%s" "%s" skipping fields`, op, m.Name), map[string]any{"fields": dropped})
	}
}

// ─── Methods and statics ──────────────────────────────────────────────────────

// Call runs a static registered on the schema.
func (m *Model) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := m.schema.static(name)
	if !ok {
		return nil, NewArgError(fmt.Sprintf(`"%s" has no static "%s"`, m.Name, name))
	}
	return fn(ctx, m, args...)
}

// Invoke runs an instance method registered on the schema against record.
func (m *Model) Invoke(ctx context.Context, name string, record Record, args ...any) (any, error) {
	fn, ok := m.schema.method(name)
	if !ok {
		return nil, NewArgError(fmt.Sprintf(`"%s" has no method "%s"`, m.Name, name))
	}
	return fn(ctx, m, record, args...)
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func single[T any](op, model string, items []T) (T, error) {
	var zero T
	switch len(items) {
	case 0:
		return zero, NewArgError(fmt.Sprintf(`%s on "%s" needs a record`, op, model))
	case 1:
		return items[0], nil
	}
	return zero, NewError(fmt.Sprintf(`batch %s is not supported (%d records given to "%s")`, op, len(items), model),
		WithCode(ErrBatchUnsupported))
}

func recordOf(v any) (Record, error) {
	if rec, ok := v.(map[string]any); ok {
		return rec, nil
	}
	return nil, NewArgError(fmt.Sprintf("expected a record, got %T", v))
}

func idOf(op string, v any) (string, error) {
	if id, ok := v.(string); ok {
		return id, nil
	}
	return "", NewArgError(fmt.Sprintf("%s hooks produced %T instead of an id", op, v))
}

// remoteError wraps failures of the remote API. Errors that already carry a
// code pass through.
func remoteError(op, object string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewError(fmt.Sprintf("%s on %s failed: %s", op, object, err.Error()),
		WithCode(ErrRemote), WithCause(err))
}
