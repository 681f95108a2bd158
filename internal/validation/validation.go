// Package validation checks mutation input against per-field rule tags
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error collects the failed rules of one input, keyed by field
type Error struct {
	Fields map[string][]string
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, strings.Join(e.Fields[name], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Extensions implements gqlerrors.ExtendedError
func (e *Error) Extensions() map[string]interface{} {
	fields := make(map[string]interface{}, len(e.Fields))
	for name, msgs := range e.Fields {
		fields[name] = msgs
	}
	return map[string]interface{}{
		"category":   "validation",
		"code":       "VALIDATION_FAILED",
		"validation": fields,
	}
}

// IsValidationError reports whether err is a validation failure
func IsValidationError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Validator runs validator tags against input maps
type Validator struct {
	validate *validator.Validate
}

// New creates a validator
func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate checks input against rules. On create every rule runs, missing
// fields included; on update only the rules of supplied fields run.
func (v *Validator) Validate(input map[string]interface{}, rules map[string]string, creating bool) error {
	if len(rules) == 0 {
		return nil
	}

	fields := make([]string, 0, len(rules))
	for field := range rules {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	failed := make(map[string][]string)
	for _, field := range fields {
		value, supplied := input[field]
		if !supplied && !creating {
			continue
		}
		err := v.validate.Var(value, rules[field])
		if err == nil {
			continue
		}

		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return fmt.Errorf("invalid rule %q for %s: %w", rules[field], field, err)
		}
		for _, fe := range errs {
			failed[field] = append(failed[field], message(field, fe))
		}
	}

	if len(failed) > 0 {
		return &Error{Fields: failed}
	}
	return nil
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed the %s=%s rule", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
}
