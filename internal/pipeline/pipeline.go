// Package pipeline applies list arguments such as cursors, paging, ordering
// and filters to queries.
package pipeline

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/devplatform/modelgraph/internal/definition"
	"github.com/devplatform/modelgraph/internal/filter"
	"github.com/devplatform/modelgraph/internal/introspect"
	"github.com/devplatform/modelgraph/internal/orm"
	"github.com/devplatform/modelgraph/internal/projection"
)

// Options is the per resolution state handed to every applier
type Options struct {
	Context    context.Context
	Query      *orm.Query
	Args       map[string]interface{}
	Source     interface{}
	Fields     projection.Tree
	Filterable map[string]filter.Strategy
	Grammar    filter.Grammar
	Columns    map[string]introspect.Kind

	// Depth is the nesting of the field being resolved, MaxDepth its bound
	Depth    int
	MaxDepth int

	stableOrder bool
}

// Applier reads one argument and refines the query when it is present
type Applier interface {
	Arguments(def *definition.Definition) graphql.FieldConfigArgument
	Apply(q *orm.Query, opts *Options) (*orm.Query, error)
}

// ArgumentError is a client error caused by an invalid argument value
type ArgumentError struct {
	Argument string
	Reason   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Argument, e.Reason)
}

// Extensions implements gqlerrors.ExtendedError
func (e *ArgumentError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"category": "argument",
		"code":     "BAD_USER_INPUT",
		"argument": e.Argument,
	}
}

// DepthError is returned when relation nesting exceeds the configured bound
type DepthError struct {
	Depth    int
	MaxDepth int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("query depth %d exceeds the maximum of %d", e.Depth, e.MaxDepth)
}

// Extensions implements gqlerrors.ExtendedError
func (e *DepthError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"category": "depth",
		"code":     "QUERY_TOO_DEEP",
	}
}

// Pipeline is an ordered list of appliers
type Pipeline []Applier

// For returns the list pipeline for a definition: cursors, skip, take and
// ordering, plus filtering when the definition declares filterable fields
func For(def *definition.Definition) Pipeline {
	p := Pipeline{After{}, Before{}, Skip{}, Take{}, OrderBy{}}
	if len(def.Filterable) > 0 {
		p = append(p, Filter{})
	}
	return p
}

// Arguments collects the arguments every applier exposes
func (p Pipeline) Arguments(def *definition.Definition) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{}
	for _, applier := range p {
		for name, arg := range applier.Arguments(def) {
			args[name] = arg
		}
	}
	return args
}

// Run applies every applier in order
func (p Pipeline) Run(opts *Options) (*orm.Query, error) {
	if opts.MaxDepth > 0 && opts.Depth > opts.MaxDepth {
		return nil, &DepthError{Depth: opts.Depth, MaxDepth: opts.MaxDepth}
	}

	q := opts.Query
	for _, applier := range p {
		next, err := applier.Apply(q, opts)
		if err != nil {
			return nil, err
		}
		q = next
	}
	if opts.stableOrder {
		q = q.OrderBy(q.Model().Column(q.Model().Key()), false)
	}
	opts.Query = q
	return q, nil
}
