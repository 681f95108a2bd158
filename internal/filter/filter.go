package filter

import (
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/devplatform/modelgraph/internal/orm"
)

// Error is a client error caused by an invalid filter expression
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid filter on %q: %s", e.Field, e.Reason)
}

// Extensions implements gqlerrors.ExtendedError
func (e *Error) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"category": "filter",
		"code":     "BAD_FILTER",
		"field":    e.Field,
	}
}

// Strategy builds the predicate for one filterable field
type Strategy interface {
	Predicate(g Grammar, key string, value interface{}) (sq.Sqlizer, error)
}

// Func adapts a function to the Strategy interface
type Func func(g Grammar, key string, value interface{}) (sq.Sqlizer, error)

// Predicate implements Strategy
func (f Func) Predicate(g Grammar, key string, value interface{}) (sq.Sqlizer, error) {
	return f(g, key, value)
}

// Column filters directly on a column
func Column(name string) Strategy {
	return Func(func(g Grammar, key string, value interface{}) (sq.Sqlizer, error) {
		return Expand(g, key, name, value)
	})
}

// Expand compiles the value filtering one column: a leaf, a list of values
// for IN, or a nested group keyed by connective
func Expand(g Grammar, key, column string, value interface{}) (sq.Sqlizer, error) {
	switch v := value.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil, &Error{Field: key, Reason: "value list must not be empty"}
		}
		return sq.Eq{column: v}, nil
	case map[string]interface{}:
		return group(g, key, column, v)
	case nil:
		return sq.Eq{column: nil}, nil
	}
	return leaf(g, column, value), nil
}

func leaf(g Grammar, column string, value interface{}) sq.Sqlizer {
	if s, ok := value.(string); ok {
		op, operand := g.Parse(s)
		return g.Compare(column, op, operand)
	}
	return g.Compare(column, opEqual, value)
}

func group(g Grammar, key, column string, connectives map[string]interface{}) (sq.Sqlizer, error) {
	if len(connectives) == 0 {
		return nil, &Error{Field: key, Reason: "group must not be empty"}
	}

	tokens := make([]string, 0, len(connectives))
	for token := range connectives {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var all sq.And
	for _, token := range tokens {
		var items []interface{}
		switch v := connectives[token].(type) {
		case []interface{}:
			items = v
		default:
			items = []interface{}{v}
		}
		if len(items) == 0 {
			return nil, &Error{Field: key, Reason: fmt.Sprintf("%q group must not be empty", token)}
		}

		preds := make([]sq.Sqlizer, 0, len(items))
		for _, item := range items {
			pred, err := Expand(g, key, column, item)
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
		}

		switch {
		case len(preds) == 1:
			all = append(all, preds[0])
		case strings.EqualFold(token, "or"):
			all = append(all, sq.Or(preds))
		default:
			all = append(all, sq.And(preds))
		}
	}

	if len(all) == 1 {
		return all[0], nil
	}
	return all, nil
}

// Compile turns a filter expression into one AND group. Every top level key
// must be registered in filterables.
func Compile(expr map[string]interface{}, filterables map[string]Strategy, g Grammar) (sq.Sqlizer, error) {
	keys := make([]string, 0, len(expr))
	for key := range expr {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	preds := make(sq.And, 0, len(keys))
	for _, key := range keys {
		strategy, ok := filterables[key]
		if !ok || strategy == nil {
			return nil, &Error{Field: key, Reason: "field is not filterable"}
		}
		pred, err := strategy.Predicate(g, key, expr[key])
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// Apply adds the compiled filter to the query
func Apply(q *orm.Query, expr map[string]interface{}, filterables map[string]Strategy, g Grammar) (*orm.Query, error) {
	if len(expr) == 0 {
		return q, nil
	}
	pred, err := Compile(expr, filterables, g)
	if err != nil {
		return nil, err
	}
	return q.Where(pred), nil
}
