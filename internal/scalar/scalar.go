// Package scalar defines the custom GraphQL scalars used by generated types
package scalar

import (
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/devplatform/modelgraph/internal/orm"
)

// Timestamp serializes times as RFC 3339 strings and accepts RFC 3339
// strings or unix seconds as input
var Timestamp = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Timestamp",
	Description: "An RFC 3339 date and time; unix seconds are accepted as input.",
	Serialize:   serializeTime,
	ParseValue:  parseTime,
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.StringValue:
			return parseTime(v.Value)
		case *ast.IntValue:
			if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
				return time.Unix(n, 0).UTC()
			}
		}
		return nil
	},
})

func serializeTime(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(time.RFC3339)
	case string:
		if t, err := orm.ParseTime(v); err == nil {
			return t.Format(time.RFC3339)
		}
		return v
	}
	return nil
}

func parseTime(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC()
		}
		if t, err := orm.ParseTime(v); err == nil {
			return t
		}
	case int:
		return time.Unix(int64(v), 0).UTC()
	case int64:
		return time.Unix(v, 0).UTC()
	case float64:
		return time.Unix(int64(v), 0).UTC()
	}
	return nil
}

// JSON carries any JSON value
var JSON = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Any JSON value.",
	Serialize: func(value interface{}) interface{} {
		return value
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: literal,
})

func literal(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.EnumValue:
		return v.Value
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, literal(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			out[field.Name.Value] = literal(field.Value)
		}
		return out
	}
	return nil
}
