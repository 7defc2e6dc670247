package salesman

import (
	"context"
	"fmt"
	"maps"

	"github.com/cloudxsgmbh/salesman-go/internal/uid"
	"golang.org/x/sync/errgroup"
)

// Logical where operators; their operands are lists of where clauses.
const (
	opAnd = "$and"
	opOr  = "$or"
)

// findPlan is a query translated to columns for one model, with the plans of
// its includes.
type findPlan struct {
	model    *Model
	r        *resolved
	query    *RemoteQuery
	includes []includePlan
}

type includePlan struct {
	path string
	rel  *ResolvedRelationship
	plan *findPlan
}

// Find runs a query and returns the matching records in the application
// shape. Included relationships are nested under their field paths: a list of
// records for collections, a record (or nil) for parent lookups.
func (m *Model) Find(ctx context.Context, q *Query) ([]Record, error) {
	if q == nil {
		q = &Query{}
	}
	out, err := m.schema.CallHook(ctx, []string{HookFind}, q, func(ctx context.Context, v any) (any, error) {
		query, err := queryOf(v)
		if err != nil {
			return nil, err
		}
		plan, err := m.plan(ctx, query)
		if err != nil {
			return nil, err
		}
		rows, err := m.query(ctx, plan)
		if err != nil {
			return nil, err
		}
		records := make([]Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, plan.unformat(row))
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	records, ok := out.([]Record)
	if !ok {
		return nil, NewArgError(fmt.Sprintf("find hooks produced %T instead of records", out))
	}
	return records, nil
}

// FindByID returns the record with the given id, or nil when there is none.
func (m *Model) FindByID(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return nil, NewArgError(fmt.Sprintf(`find on "%s" needs a non-empty id`, m.Name))
	}
	r, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if r.definition.IDField == "" {
		return nil, NewArgError(fmt.Sprintf(`"%s" has no field mapped to %s`, m.Name, IDColumn))
	}
	records, err := m.Find(ctx, &Query{Where: map[string]any{r.definition.IDField: id}, Limit: 1})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// RemoteQuery translates q to the column-keyed query sent to the remote API.
func (m *Model) RemoteQuery(ctx context.Context, q *Query) (*RemoteQuery, error) {
	plan, err := m.plan(ctx, q)
	if err != nil {
		return nil, err
	}
	return plan.query, nil
}

func (m *Model) plan(ctx context.Context, q *Query) (*findPlan, error) {
	r, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	nq, err := NormalizeQuery(q, r.definition)
	if err != nil {
		return nil, err
	}
	where, err := formatWhere(r.transformer, nq.Where)
	if err != nil {
		return nil, err
	}
	plan := &findPlan{
		model: m,
		r:     r,
		query: &RemoteQuery{
			Select: r.transformer.FormatKeys(nq.Select),
			Where:  where,
			Sort:   formatSort(r.transformer, nq.Sort),
			Limit:  nq.Limit,
			Skip:   nq.Skip,
		},
		includes: make([]includePlan, len(nq.Includes)),
	}

	rels := make([]*ResolvedRelationship, len(nq.Includes))
	for i, inc := range nq.Includes {
		rel, ok := r.definition.Relationships[inc.Ref]
		if !ok {
			return nil, NewError(fmt.Sprintf(`"%s" is not a relationship of "%s"`, inc.Ref, m.Name),
				WithCode(ErrUnknownRelationship))
		}
		rels[i] = rel
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, inc := range nq.Includes {
		i, inc := i, inc
		rel := rels[i]
		g.Go(func() error {
			sub, err := rel.Model.plan(gctx, inc.Query)
			if err != nil {
				return err
			}
			plan.includes[i] = includePlan{path: inc.Ref, rel: rel, plan: sub}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, inc := range plan.includes {
		if !inc.rel.Collection && narrows(inc.plan.query) {
			return nil, NewArgError(fmt.Sprintf(
				`include "%s" of "%s" is a single parent record: its query may only select fields`, inc.path, m.Name))
		}
		plan.query.Includes = append(plan.query.Includes, RemoteInclude{
			RelationshipName: inc.rel.RelationshipName,
			Collection:       inc.rel.Collection,
			Query:            inc.plan.query,
		})
	}
	return plan, nil
}

// narrows reports whether q filters, orders or pages its records.
func narrows(q *RemoteQuery) bool {
	return len(q.Where) > 0 || len(q.Sort) > 0 || q.Limit != nil || q.Skip > 0
}

func (m *Model) query(ctx context.Context, plan *findPlan) ([]Record, error) {
	sess, err := m.sm.session(ctx)
	if err != nil {
		return nil, err
	}
	object := m.ObjectName()
	opID := uid.New()
	m.log.Info(fmt.Sprintf(`Salesman "find" "%s"`, m.Name), map[string]any{
		"op": HookFind, "id": opID, "object": object,
		"select": plan.query.Select, "where": plan.query.Where,
	})
	rows, err := sess.SObject(object).Find(ctx, plan.query)
	if err != nil {
		err = remoteError(HookFind, object, err)
		m.log.Error(fmt.Sprintf(`Salesman "find" "%s" failed`, m.Name), map[string]any{"id": opID, "err": err.Error()})
		return nil, err
	}
	m.log.Data(fmt.Sprintf(`Salesman "find" "%s" result`, m.Name), map[string]any{"id": opID, "count": len(rows)})
	return rows, nil
}

// unformat converts one remote row, including nested relationship payloads.
func (p *findPlan) unformat(row Record) Record {
	out := p.r.transformer.Unformat(row, false)
	for _, inc := range p.includes {
		raw, ok := row[inc.rel.RelationshipName]
		if !ok {
			continue
		}
		if inc.rel.Collection {
			children := childRows(raw)
			list := make([]Record, 0, len(children))
			for _, child := range children {
				list = append(list, inc.plan.unformat(child))
			}
			SetPath(out, inc.path, list)
			continue
		}
		if parent, ok := raw.(map[string]any); ok {
			SetPath(out, inc.path, inc.plan.unformat(parent))
		} else {
			SetPath(out, inc.path, nil)
		}
	}
	return out
}

// childRows reads a sub-query result: either a plain list of rows or an
// object with a "records" list.
func childRows(raw any) []Record {
	switch v := raw.(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out
	case map[string]any:
		return childRows(v["records"])
	}
	return nil
}

// formatWhere maps a normalized where clause to columns. The operands of
// $and / $or are where clauses themselves and are normalized recursively.
func formatWhere(t *Transformer, where map[string]any) (map[string]any, error) {
	out := map[string]any{}
	plain := map[string]any{}
	var scoped []any
	for _, key := range sortedKeys(where) {
		if key != opAnd && key != opOr {
			if ns, ok := where[key].(map[string]any); ok && hasLogical(ns) {
				clause, err := scopeLogical(t, key, ns)
				if err != nil {
					return nil, err
				}
				scoped = append(scoped, clause)
				continue
			}
			plain[key] = where[key]
			continue
		}
		branches, err := whereBranches(key, where[key])
		if err != nil {
			return nil, err
		}
		formatted := make([]any, 0, len(branches))
		for _, branch := range branches {
			sub, err := formatWhere(t, normalizeWhere(branch))
			if err != nil {
				return nil, err
			}
			formatted = append(formatted, sub)
		}
		out[key] = formatted
	}
	maps.Copy(out, t.FormatKeys(plain))
	if len(scoped) > 0 {
		and, _ := out[opAnd].([]any)
		out[opAnd] = append(and, scoped...)
	}
	return out, nil
}

func hasLogical(m map[string]any) bool {
	_, and := m[opAnd]
	_, or := m[opOr]
	return and || or
}

// scopeLogical rewrites {"$or": [...]} found under the namespace prefix into a
// top-level clause whose branches are nested under prefix.
func scopeLogical(t *Transformer, prefix string, ns map[string]any) (map[string]any, error) {
	clause := map[string]any{}
	for _, op := range sortedKeys(ns) {
		if op != opAnd && op != opOr {
			return nil, NewArgError(fmt.Sprintf("logical operators under %s cannot be combined with %s", prefix, op))
		}
		branches, err := whereBranches(op, ns[op])
		if err != nil {
			return nil, err
		}
		nested := make([]any, len(branches))
		for i, branch := range branches {
			nested[i] = map[string]any{prefix: branch}
		}
		clause[op] = nested
	}
	return formatWhere(t, clause)
}

func whereBranches(op string, v any) ([]map[string]any, error) {
	switch list := v.(type) {
	case []map[string]any:
		return list, nil
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, NewArgError(fmt.Sprintf("%s operands must be where clauses, got %T", op, item))
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, NewArgError(fmt.Sprintf("%s needs a list of where clauses, got %T", op, v))
}

func formatSort(t *Transformer, sort map[string]int) map[string]int {
	in := make(map[string]any, len(sort))
	for k, v := range sort {
		in[k] = v
	}
	out := map[string]int{}
	for column, v := range t.FormatKeys(in) {
		out[column] = v.(int)
	}
	return out
}

func queryOf(v any) (*Query, error) {
	switch q := v.(type) {
	case *Query:
		if q == nil {
			return &Query{}, nil
		}
		return q, nil
	case Query:
		return &q, nil
	case map[string]any:
		return queryFromMap(q), nil
	}
	return nil, NewArgError(fmt.Sprintf("expected a query, got %T", v))
}
