package discuss

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationMap maps parameter names to the value and validator tag to check.
type ValidationMap map[string]ValueWithTag

type ValueWithTag struct {
	value any
	tag   string
}

func WithTag(value any, tag string) ValueWithTag {
	return ValueWithTag{value: value, tag: tag}
}

// ValidateFields checks every field, in name order, and collects the failures
// in a *ValidationError.
func ValidateFields(validate *validator.Validate, fields ValidationMap) error {
	validationErr := &ValidationError{}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		field := fields[name]

		err := validate.Var(field.value, field.tag)
		if err != nil {
			validationErr.Append(name, validationReason(err))
		}
	}

	if len(validationErr.Parameters) > 0 {
		return validationErr
	}

	return nil
}

func validationReason(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}

	fieldErr := fieldErrs[0]

	switch fieldErr.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s", fieldErr.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fieldErr.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fieldErr.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fieldErr.Param())
	default:
		return fmt.Sprintf("failed on %q", fieldErr.Tag())
	}
}

// validateContent trims content and checks it against the configured limits.
func (s *CommentStore) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)

	err := ValidateFields(s.validate, ValidationMap{
		"content": WithTag(content, fmt.Sprintf("required,max=%d", s.cfg.MaxContentLength)),
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

// validateTarget rejects ids the server cannot know about yet.
func validateTarget(parameter, id string) error {
	validationErr := &ValidationError{}

	switch {
	case strings.TrimSpace(id) == "":
		validationErr.Append(parameter, "is required")
	case IsTemporaryID(id):
		validationErr.Append(parameter, "refers to a comment that is not confirmed yet")
	default:
		return nil
	}

	return validationErr
}
