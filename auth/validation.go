package auth

import (
	"github.com/jrsteele09/librahub-admin/internal/validation"
)

// Only shape is checked locally; password policy belongs to the API.
var validator = validation.NewValidator()

func validateRequest(req any) error {
	return validator.Validate(req)
}
