/*
Package salesman – query normalization.

User queries are loose: select may be a string, a list or a nested map, where
clauses nest, includes accept several shapes. NormalizeQuery reduces all of
them to flat, field-path keyed clauses validated against a Definition.
*/
package salesman

import (
	"fmt"
	"strings"
)

// operatorPrefix marks operator keys inside where clauses ($like, $in, ...).
const operatorPrefix = "$"

// Definition exposes the field table a query is checked against.
type Definition interface {
	Fields() Attributes
}

// Query is a user-supplied find query.
type Query struct {
	// Select is a string ("id contact.*"), []string, []any or nested map.
	Select any
	// Where is a nested condition map. Maps holding a "$" key are operator objects.
	Where map[string]any
	// Sort is a string ("name -created") or nested map of field → 1/-1.
	Sort any
	// Limit of 0 means no limit.
	Limit int
	Skip  int
	// Includes is a string, Include, *Include, map with "ref"/"query", or a slice of those.
	Includes any
	// Include is the legacy alias of Includes.
	Include any
}

// Include requests related records through a relationship field.
type Include struct {
	Ref   string
	Query *Query
}

// NormalizedQuery is the validated, flattened form of a Query.
type NormalizedQuery struct {
	Select   map[string]any
	Where    map[string]any
	Sort     map[string]int
	Limit    *int
	Skip     int
	Includes []Include
}

// NormalizeQuery validates and flattens q against def. A nil q selects every
// field with no conditions.
func NormalizeQuery(q *Query, def Definition) (*NormalizedQuery, error) {
	if q == nil {
		q = &Query{}
	}
	fields := def.Fields()

	if q.Limit < 0 {
		return nil, NewArgError(fmt.Sprintf("limit must be greater than 0, got %d", q.Limit))
	}
	if q.Skip < 0 {
		return nil, NewArgError(fmt.Sprintf("skip must be greater than or equal to 0, got %d", q.Skip))
	}

	nq := &NormalizedQuery{Skip: q.Skip}
	if q.Limit > 0 {
		limit := q.Limit
		nq.Limit = &limit
	}

	sel := q.Select
	if isEmptySelect(sel) {
		sel = defaultSelect(fields)
	}
	selMap, err := selectMap(sel)
	if err != nil {
		return nil, err
	}
	nq.Select = normalizeSelect(selMap, fields)
	nq.Where = normalizeWhere(q.Where)

	nq.Sort, err = normalizeSort(q.Sort)
	if err != nil {
		return nil, err
	}

	includes := q.Includes
	if includes == nil {
		includes = q.Include
	}
	nq.Includes = normalizeIncludes(includes, fields)
	return nq, nil
}

func isEmptySelect(sel any) bool {
	switch s := sel.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	case []string:
		return len(s) == 0
	case []any:
		return len(s) == 0
	case map[string]any:
		return len(s) == 0
	}
	return false
}

func defaultSelect(fields Attributes) map[string]any {
	sel := make(map[string]any, len(fields))
	for path := range fields {
		sel[path] = true
	}
	return sel
}

func selectMap(sel any) (map[string]any, error) {
	switch s := sel.(type) {
	case map[string]any:
		return s, nil
	case string:
		return trueMap(splitFieldList(s)), nil
	case []string:
		return trueMap(s), nil
	case []any:
		keys := make([]string, 0, len(s))
		for _, v := range s {
			k, ok := v.(string)
			if !ok {
				return nil, NewArgError(fmt.Sprintf("select entries must be strings, got %T", v))
			}
			keys = append(keys, k)
		}
		return trueMap(keys), nil
	}
	return nil, NewArgError(fmt.Sprintf("select must be a string, list or map, got %T", sel))
}

// splitFieldList splits on whitespace and commas.
func splitFieldList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

func trueMap(keys []string) map[string]any {
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func normalizeSelect(sel map[string]any, fields Attributes) map[string]any {
	known := make(map[string]bool, len(fields))
	for path := range fields {
		known[path] = true
	}
	sorted := sortedKeys(fields)

	out := map[string]any{}
	flat := Flatten(sel, nil)
	for _, key := range sortedKeys(flat) {
		for _, path := range expandKey(key, known, sorted) {
			out[path] = flat[key]
		}
	}
	return out
}

func normalizeWhere(where map[string]any) map[string]any {
	if where == nil {
		return map[string]any{}
	}
	return Flatten(where, whereLeaf)
}

// whereLeaf stops at operator objects and value lists.
func whereLeaf(value any, _ string) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, hasOperator(v)
	case []any:
		return v, true
	}
	return value, true
}

func hasOperator(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, operatorPrefix) {
			return true
		}
	}
	return false
}

func normalizeSort(sort any) (map[string]int, error) {
	out := map[string]int{}
	switch s := sort.(type) {
	case nil:
		return out, nil
	case string:
		for _, field := range splitFieldList(s) {
			if strings.HasPrefix(field, "-") {
				out[field[1:]] = -1
			} else {
				out[strings.TrimPrefix(field, "+")] = 1
			}
		}
		return out, nil
	case map[string]any:
		for path, v := range Flatten(s, nil) {
			out[path] = sortDirection(v)
		}
		return out, nil
	case map[string]int:
		for path, v := range s {
			out[path] = sortDirection(v)
		}
		return out, nil
	}
	return nil, NewArgError(fmt.Sprintf("sort must be a string or a map, got %T", sort))
}

func sortDirection(v any) int {
	switch d := v.(type) {
	case int:
		if d < 0 {
			return -1
		}
	case int64:
		if d < 0 {
			return -1
		}
	case float64:
		if d < 0 {
			return -1
		}
	case string:
		switch strings.ToLower(d) {
		case "desc", "descending", "-1":
			return -1
		}
	}
	return 1
}

func normalizeIncludes(includes any, fields Attributes) []Include {
	out := []Include{}
	for _, candidate := range listOf(includes) {
		inc, ok := coerceInclude(candidate)
		if !ok {
			continue
		}
		def, ok := fields[inc.Ref]
		if !ok || !def.IsRelationship() {
			continue
		}
		out = append(out, inc)
	}
	return out
}

func listOf(v any) []any {
	switch l := v.(type) {
	case nil:
		return nil
	case []any:
		return l
	case []string:
		return anySlice(l)
	case []Include:
		return anySlice(l)
	case []*Include:
		return anySlice(l)
	case []map[string]any:
		return anySlice(l)
	}
	return []any{v}
}

func anySlice[T any](l []T) []any {
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = v
	}
	return out
}

func coerceInclude(v any) (Include, bool) {
	switch c := v.(type) {
	case string:
		return Include{Ref: c}, c != ""
	case Include:
		return c, c.Ref != ""
	case *Include:
		if c == nil {
			return Include{}, false
		}
		return *c, c.Ref != ""
	case map[string]any:
		ref, _ := c["ref"].(string)
		if ref == "" {
			return Include{}, false
		}
		inc := Include{Ref: ref}
		switch q := c["query"].(type) {
		case *Query:
			inc.Query = q
		case Query:
			inc.Query = &q
		case map[string]any:
			inc.Query = queryFromMap(q)
		}
		return inc, true
	}
	return Include{}, false
}

// queryFromMap reads a loosely typed query map, as decoded from JSON or YAML.
func queryFromMap(m map[string]any) *Query {
	q := &Query{
		Select:   m["select"],
		Sort:     m["sort"],
		Includes: m["includes"],
		Include:  m["include"],
	}
	if where, ok := m["where"].(map[string]any); ok {
		q.Where = where
	}
	q.Limit = intOf(m["limit"])
	q.Skip = intOf(m["skip"])
	return q
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
