// Package filter compiles filter expressions into SQL predicates.
//
// A filter expression maps field names to leaf strings or to nested groups:
//
//	{"id": "(gt) 5"}                                 id > 5
//	{"name": "Dae%"}                                 name LIKE 'Dae%'
//	{"name": {"or": ["Arya", "Sansa"]}, "email": "x"} (name = 'Arya' OR name = 'Sansa') AND email = 'x'
//	{"id": [1, 2, 3]}                                id IN (1, 2, 3)
//
// Leaf strings may start with an operator token, one of (lt), (lte), (gt)
// or (gte). Without a token the comparison is LIKE when the value contains
// a % wildcard and equality otherwise.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	sq "github.com/Masterminds/squirrel"

	"github.com/devplatform/modelgraph/internal/orm"
)

// ErrUnknownDialect is returned when no grammar matches the database driver
var ErrUnknownDialect = orm.ErrUnknownDialect

const (
	opEqual = "="
	opLike  = "LIKE"
	opILike = "ILIKE"
)

var operatorToken = regexp.MustCompile(`^\((lte|lt|gte|gt)\)\s*`)

var operators = map[string]string{
	"lt":  "<",
	"lte": "<=",
	"gt":  ">",
	"gte": ">=",
}

// Grammar turns leaf values into comparisons for one SQL dialect
type Grammar interface {
	// Parse splits a leaf value into its operator and operand
	Parse(value string) (op string, operand string)
	// Compare builds the predicate comparing column to value
	Compare(column, op string, value interface{}) sq.Sqlizer
}

func parse(value string) (string, string) {
	if m := operatorToken.FindStringSubmatch(value); m != nil {
		return operators[m[1]], value[len(m[0]):]
	}
	if strings.Contains(value, "%") {
		return opLike, value
	}
	return opEqual, value
}

// Default compares case-insensitively by lower-casing both sides
type Default struct{}

// Parse implements Grammar
func (Default) Parse(value string) (string, string) {
	return parse(value)
}

// Compare implements Grammar
func (Default) Compare(column, op string, value interface{}) sq.Sqlizer {
	if s, ok := value.(string); ok && (op == opEqual || op == opLike) && hasLetter(s) {
		return sq.Expr(fmt.Sprintf("LOWER(%s) %s ?", column, op), strings.ToLower(s))
	}
	return sq.Expr(fmt.Sprintf("%s %s ?", column, op), value)
}

// Postgres uses ILIKE for patterns and leaves columns unwrapped
type Postgres struct{}

// Parse implements Grammar
func (Postgres) Parse(value string) (string, string) {
	op, operand := parse(value)
	if op == opLike {
		op = opILike
	}
	return op, operand
}

// Compare implements Grammar
func (Postgres) Compare(column, op string, value interface{}) sq.Sqlizer {
	return sq.Expr(fmt.Sprintf("%s %s ?", column, op), value)
}

// ForDriver selects the grammar for a database driver name
func ForDriver(driver string) (Grammar, error) {
	switch driver {
	case "postgres", "pgsql", "pgx":
		return Postgres{}, nil
	case "mysql", "sqlite", "sqlite3":
		return Default{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, driver)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
