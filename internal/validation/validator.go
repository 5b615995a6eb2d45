package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/internal/utils"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names instead of struct field names for error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	// nonblank: a string with content other than whitespace, or a slice of them
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		switch f := fl.Field(); f.Kind() {
		case reflect.String:
			return strings.TrimSpace(f.String()) != ""
		case reflect.Slice:
			values, ok := f.Interface().([]string)
			return ok && utils.AllNonBlank(values)
		}
		return false
	})

	return &Validator{
		validate: v,
	}
}

// Validate checks i against its validate tags. The returned error wraps
// ErrInvalidInput and lists every failing field.
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, formatValidationErrors(validationErrs))
		}
		return err
	}
	return nil
}

// Invalid builds an input error for checks tags can't express.
func Invalid(message string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, message)
}

// Message strips the ErrInvalidInput prefix, leaving text fit for display.
func Message(err error) string {
	return strings.TrimPrefix(err.Error(), apperrors.ErrInvalidInput.Error()+": ")
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	var messages []string
	for _, err := range errs {
		var message string
		field := err.Field()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", field)
		case "min":
			if err.Kind() == reflect.Slice {
				message = fmt.Sprintf("%s must have at least %s entries", field, err.Param())
			} else {
				message = fmt.Sprintf("%s must be at least %s characters", field, err.Param())
			}
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", field, err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "eqfield":
			message = fmt.Sprintf("%s must match %s", field, lowerFirst(err.Param()))
		case "nonblank":
			message = fmt.Sprintf("%s cannot be blank", field)
		case "gte":
			message = fmt.Sprintf("%s must be greater than or equal to %s", field, err.Param())
		case "lte":
			message = fmt.Sprintf("%s must be less than or equal to %s", field, err.Param())
		default:
			message = fmt.Sprintf("%s failed validation for %s", field, err.Tag())
		}
		messages = append(messages, message)
	}

	return strings.Join(messages, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
