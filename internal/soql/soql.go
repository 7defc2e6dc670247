/*
Package soql – SOQL statement builder.

Build renders a column-keyed RemoteQuery as a SOQL SELECT. Where clauses
accept plain values (equality, lists become IN), operator objects
($eq $ne $gt $gte $lt $lte $like $in $nin $exists) and $and / $or lists.
Collection includes become child sub-queries; parent includes contribute
their columns through the relationship name.
*/
package soql

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	salesman "github.com/cloudxsgmbh/salesman-go"
)

var comparisons = map[string]string{
	"$eq":   "=",
	"$ne":   "!=",
	"$gt":   ">",
	"$gte":  ">=",
	"$lt":   "<",
	"$lte":  "<=",
	"$like": "LIKE",
	"$in":   "IN",
	"$nin":  "NOT IN",
}

// Build renders q against object.
func Build(object string, q *salesman.RemoteQuery) (string, error) {
	if object == "" {
		return "", fmt.Errorf("soql: missing object name")
	}
	if q == nil {
		q = &salesman.RemoteQuery{}
	}
	fields, err := selectList(q, "")
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		fields = []string{salesman.IDColumn}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(object)
	if err := writeTail(&b, q); err != nil {
		return "", err
	}
	return b.String(), nil
}

// selectList returns the selected columns, prefixed for parent includes, with
// child sub-queries last.
func selectList(q *salesman.RemoteQuery, prefix string) ([]string, error) {
	var fields []string
	for _, column := range sortedKeys(q.Select) {
		if truthy(q.Select[column]) {
			fields = append(fields, prefix+column)
		}
	}
	for _, inc := range q.Includes {
		if inc.RelationshipName == "" {
			return nil, fmt.Errorf("soql: include without relationship name")
		}
		sub := inc.Query
		if sub == nil {
			sub = &salesman.RemoteQuery{}
		}
		if !inc.Collection {
			if len(sub.Where) > 0 || len(sub.Sort) > 0 || sub.Limit != nil || sub.Skip > 0 {
				return nil, fmt.Errorf("soql: parent lookup %s cannot filter, sort or page", inc.RelationshipName)
			}
			parent, err := selectList(sub, prefix+inc.RelationshipName+".")
			if err != nil {
				return nil, err
			}
			if len(parent) == 0 {
				parent = []string{prefix + inc.RelationshipName + "." + salesman.IDColumn}
			}
			fields = append(fields, parent...)
			continue
		}
		if prefix != "" {
			return nil, fmt.Errorf("soql: child relationship %s cannot be nested in a parent lookup", inc.RelationshipName)
		}
		child, err := subQuery(inc.RelationshipName, sub)
		if err != nil {
			return nil, err
		}
		fields = append(fields, child)
	}
	return fields, nil
}

func subQuery(relationship string, q *salesman.RemoteQuery) (string, error) {
	for _, inc := range q.Includes {
		if inc.Collection {
			return "", fmt.Errorf("soql: sub-query %s cannot include child relationship %s", relationship, inc.RelationshipName)
		}
	}
	fields, err := selectList(q, "")
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		fields = []string{salesman.IDColumn}
	}
	var b strings.Builder
	b.WriteString("(SELECT ")
	b.WriteString(strings.Join(fields, ", "))
	b.WriteString(" FROM ")
	b.WriteString(relationship)
	if err := writeTail(&b, q); err != nil {
		return "", err
	}
	b.WriteString(")")
	return b.String(), nil
}

func writeTail(b *strings.Builder, q *salesman.RemoteQuery) error {
	if len(q.Where) > 0 {
		cond, err := Where(q.Where)
		if err != nil {
			return err
		}
		if cond != "" {
			b.WriteString(" WHERE ")
			b.WriteString(cond)
		}
	}
	if len(q.Sort) > 0 {
		order := make([]string, 0, len(q.Sort))
		for _, column := range sortedKeys(q.Sort) {
			dir := "ASC"
			if q.Sort[column] < 0 {
				dir = "DESC"
			}
			order = append(order, column+" "+dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	if q.Limit != nil {
		fmt.Fprintf(b, " LIMIT %d", *q.Limit)
	}
	if q.Skip > 0 {
		fmt.Fprintf(b, " OFFSET %d", q.Skip)
	}
	return nil
}

// Where renders a where clause; conditions are joined with AND.
func Where(where map[string]any) (string, error) {
	conds := make([]string, 0, len(where))
	for _, key := range sortedKeys(where) {
		value := where[key]
		var (
			cond string
			err  error
		)
		switch key {
		case "$and":
			cond, err = logical("AND", value)
		case "$or":
			cond, err = logical("OR", value)
		default:
			cond, err = condition(key, value)
		}
		if err != nil {
			return "", err
		}
		if cond != "" {
			conds = append(conds, cond)
		}
	}
	return strings.Join(conds, " AND "), nil
}

func logical(op string, value any) (string, error) {
	var branches []map[string]any
	switch list := value.(type) {
	case []map[string]any:
		branches = list
	case []any:
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return "", fmt.Errorf("soql: %s operand must be a map, got %T", strings.ToLower(op), item)
			}
			branches = append(branches, m)
		}
	default:
		return "", fmt.Errorf("soql: %s needs a list, got %T", strings.ToLower(op), value)
	}
	parts := make([]string, 0, len(branches))
	for _, branch := range branches {
		cond, err := Where(branch)
		if err != nil {
			return "", err
		}
		if cond != "" {
			parts = append(parts, "("+cond+")")
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", nil
}

func condition(column string, value any) (string, error) {
	ops, ok := value.(map[string]any)
	if !ok {
		if isList(value) {
			return compare(column, "$in", value)
		}
		return compare(column, "$eq", value)
	}
	parts := make([]string, 0, len(ops))
	for _, op := range sortedKeys(ops) {
		var (
			cond string
			err  error
		)
		if op == "$exists" {
			cond, err = exists(column, ops[op])
		} else {
			cond, err = compare(column, op, ops[op])
		}
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	return strings.Join(parts, " AND "), nil
}

func exists(column string, v any) (string, error) {
	want, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("soql: $exists on %s needs a boolean, got %T", column, v)
	}
	if want {
		return column + " != null", nil
	}
	return column + " = null", nil
}

func compare(column, op string, v any) (string, error) {
	sym, ok := comparisons[op]
	if !ok {
		return "", fmt.Errorf("soql: unknown operator %s on %s", op, column)
	}
	if op == "$in" || op == "$nin" {
		list, err := listLiteral(v)
		if err != nil {
			return "", fmt.Errorf("soql: %s on %s: %w", op, column, err)
		}
		return column + " " + sym + " " + list, nil
	}
	lit, err := Literal(v)
	if err != nil {
		return "", fmt.Errorf("soql: %s on %s: %w", op, column, err)
	}
	return column + " " + sym + " " + lit, nil
}

func listLiteral(v any) (string, error) {
	var items []any
	switch l := v.(type) {
	case []any:
		items = l
	case []string:
		for _, s := range l {
			items = append(items, s)
		}
	case []int:
		for _, n := range l {
			items = append(items, n)
		}
	default:
		return "", fmt.Errorf("expected a list, got %T", v)
	}
	lits := make([]string, 0, len(items))
	for _, item := range items {
		lit, err := Literal(item)
		if err != nil {
			return "", err
		}
		lits = append(lits, lit)
	}
	return "(" + strings.Join(lits, ", ") + ")", nil
}

// Literal renders a Go value as a SOQL literal.
func Literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case string:
		return quote(x), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05Z"), nil
	}
	return "", fmt.Errorf("unsupported literal %T", v)
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("unsupported number %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

var quoter = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func quote(s string) string {
	return "'" + quoter.Replace(s) + "'"
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string, []int:
		return true
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != "" && x != "0"
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
