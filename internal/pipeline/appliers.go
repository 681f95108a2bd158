package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/scalar"
)

// After keeps records whose primary key is greater than the cursor
type After struct{}

func (After) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"after": &graphql.ArgumentConfig{
			Type:        graphql.ID,
			Description: "Only return records after this id",
		},
	}
}

func (After) Apply(q *orm.Query, opts *Options) (*orm.Query, error) {
	v, ok := opts.Args["after"]
	if !ok || v == nil {
		return q, nil
	}
	opts.stableOrder = true
	return q.Where(sq.Gt{q.Model().Column(q.Model().Key()): v}), nil
}

// Before keeps records whose primary key is less than the cursor
type Before struct{}

func (Before) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"before": &graphql.ArgumentConfig{
			Type:        graphql.ID,
			Description: "Only return records before this id",
		},
	}
}

func (Before) Apply(q *orm.Query, opts *Options) (*orm.Query, error) {
	v, ok := opts.Args["before"]
	if !ok || v == nil {
		return q, nil
	}
	opts.stableOrder = true
	return q.Where(sq.Lt{q.Model().Column(q.Model().Key()): v}), nil
}

// Skip offsets the result
type Skip struct{}

func (Skip) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"skip": &graphql.ArgumentConfig{
			Type:        graphql.Int,
			Description: "Number of records to skip",
		},
	}
}

func (Skip) Apply(q *orm.Query, opts *Options) (*orm.Query, error) {
	n, ok := IntArg(opts.Args, "skip")
	if !ok {
		return q, nil
	}
	if n < 0 {
		return nil, &ArgumentError{Argument: "skip", Reason: "must not be negative"}
	}
	return q.Offset(uint64(n)), nil
}

// Take limits the result
type Take struct{}

func (Take) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"take": &graphql.ArgumentConfig{
			Type:        graphql.Int,
			Description: "Maximum number of records to return",
		},
	}
}

func (Take) Apply(q *orm.Query, opts *Options) (*orm.Query, error) {
	n, ok := IntArg(opts.Args, "take")
	if !ok {
		return q, nil
	}
	if n < 0 {
		return nil, &ArgumentError{Argument: "take", Reason: "must not be negative"}
	}
	return q.Limit(uint64(n)), nil
}

// OrderBy sorts by columns given as field, field_asc or field_desc
type OrderBy struct{}

func (OrderBy) Arguments(*definition.Definition) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"order_by": &graphql.ArgumentConfig{
			Type:        graphql.NewList(graphql.NewNonNull(graphql.String)),
			Description: "Sort fields, suffixed with _asc or _desc",
		},
	}
}

func (OrderBy) Apply(q *orm.Query, opts *Options) (*orm.Query, error) {
	raw, ok := opts.Args["order_by"].([]interface{})
	if !ok {
		return q, nil
	}
	for _, item := range raw {
		token, _ := item.(string)
		field, desc := ParseOrder(token)
		if kind, known := opts.Columns[field]; !known || kind == introspect.KindUnknown {
			return nil, &ArgumentError{Argument: "order_by", Reason: fmt.Sprintf("cannot sort by %q", field)}
		}
		q = q.OrderBy(q.Model().Column(field), desc)
	}
	return q, nil
}

// ParseOrder splits an order token into its field and direction
func ParseOrder(token string) (field string, desc bool) {
	switch {
	case strings.HasSuffix(token, "_desc"):
		return strings.TrimSuffix(token, "_desc"), true
	case strings.HasSuffix(token, "_asc"):
		return strings.TrimSuffix(token, "_asc"), false
	}
	return token, false
}

// Filter applies a filter expression over the definition's filterable fields
type Filter struct{}

func (Filter) Arguments(def *definition.Definition) graphql.FieldConfigArgument {
	fields := make([]string, 0, len(def.Filterable))
	for name := range def.Filterable {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return graphql.FieldConfigArgument{
		"filter": &graphql.ArgumentConfig{
			Type:        scalar.JSON,
			Description: "Filter expression over " + strings.Join(fields, ", "),
		},
	}
}

func (Filter) Apply(q *orm.Query, opts *Options) (*orm.Query, error) {
	raw, ok := opts.Args["filter"]
	if !ok || raw == nil {
		return q, nil
	}

	var expr map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		expr = v
	case string:
		if err := json.Unmarshal([]byte(v), &expr); err != nil {
			return nil, &ArgumentError{Argument: "filter", Reason: "must be a JSON object"}
		}
	default:
		return nil, &ArgumentError{Argument: "filter", Reason: "must be an object"}
	}

	if opts.Grammar == nil {
		return nil, fmt.Errorf("no filter grammar configured")
	}
	return filter.Apply(q, expr, opts.Filterable, opts.Grammar)
}

// IntArg reads an integer argument
func IntArg(args map[string]interface{}, name string) (int, bool) {
	switch v := args[name].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
