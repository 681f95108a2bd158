package transformer

import (
	"errors"
	"fmt"

	"github.com/devplatform/modelgraph/internal/orm"
)

// NotFoundError is returned when a lookup by id matches no record
type NotFoundError struct {
	Definition string
	ID         interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Definition, e.ID)
}

// Extensions implements gqlerrors.ExtendedError
func (e *NotFoundError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"category": "not_found",
		"code":     "NOT_FOUND",
		"type":     e.Definition,
	}
}

// InputError is a malformed mutation payload
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input for %q: %s", e.Field, e.Reason)
}

// Extensions implements gqlerrors.ExtendedError
func (e *InputError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"category": "input",
		"code":     "BAD_USER_INPUT",
		"field":    e.Field,
	}
}

// ConflictError reports a write rejected by a database constraint
type ConflictError struct {
	Definition string
	Err        error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflicts with existing data: %v", e.Definition, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Extensions implements gqlerrors.ExtendedError
func (e *ConflictError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"category": "conflict",
		"code":     "CONFLICT",
		"type":     e.Definition,
	}
}

// writeError turns constraint violations into client errors
func writeError(def string, err error) error {
	if errors.Is(err, orm.ErrUniqueViolation) || errors.Is(err, orm.ErrForeignKeyViolation) {
		return &ConflictError{Definition: def, Err: err}
	}
	return err
}
