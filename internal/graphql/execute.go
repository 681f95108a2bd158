package graphql

import (
	"context"
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/sirupsen/logrus"

	"github.com/devplatform/modelgraph/internal/prometheus"
	"github.com/devplatform/modelgraph/internal/types"
)

// internalMessage replaces resolver errors that carry no client classification
const internalMessage = "internal server error"

// Request is one GraphQL operation
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
}

// Execute runs a request against the named schema. Pagination of list
// fields is returned under extensions.pagination, keyed by response path.
func (m *Manager) Execute(ctx context.Context, schemaName string, req Request) (*graphql.Result, error) {
	schema, err := m.Schema(ctx, schemaName)
	if err != nil {
		return nil, err
	}

	collector := types.NewCollector()
	result := graphql.Do(graphql.Params{
		Schema:         *schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        types.WithCollector(ctx, collector),
	})

	if entries := collector.Entries(); len(entries) > 0 {
		if result.Extensions == nil {
			result.Extensions = make(map[string]interface{})
		}
		result.Extensions["pagination"] = entries
	}
	result.Errors = m.sanitize(schemaName, result.Errors)
	return result, nil
}

// sanitize keeps client errors and replaces everything a resolver returned
// without classification by a generic message
func (m *Manager) sanitize(schemaName string, errs []gqlerrors.FormattedError) []gqlerrors.FormattedError {
	if len(errs) == 0 {
		return errs
	}

	out := make([]gqlerrors.FormattedError, 0, len(errs))
	for _, e := range errs {
		orig := e.OriginalError()
		if orig == nil {
			// syntax and validation errors raised by the executor itself
			prometheus.RecordClientError("GRAPHQL_VALIDATION_FAILED")
			out = append(out, e)
			continue
		}

		var located *gqlerrors.Error
		if errors.As(orig, &located) && located.OriginalError != nil {
			orig = located.OriginalError
		}

		var extended gqlerrors.ExtendedError
		if errors.As(orig, &extended) {
			code, _ := extended.Extensions()["code"].(string)
			prometheus.RecordClientError(code)
			if e.Extensions == nil {
				e.Extensions = extended.Extensions()
			}
			out = append(out, e)
			continue
		}

		prometheus.RecordInternalError()
		m.logger.WithFields(logrus.Fields{
			"schema": schemaName,
			"path":   e.Path,
		}).WithError(orig).Error("Resolver failed")
		out = append(out, gqlerrors.FormattedError{
			Message:    internalMessage,
			Locations:  e.Locations,
			Path:       e.Path,
			Extensions: map[string]interface{}{"category": "internal", "code": "INTERNAL_SERVER_ERROR"},
		})
	}
	return out
}
