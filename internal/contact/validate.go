package contact

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"contact-manager/internal/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks c before it is sent upstream. Rejections are ValidationViolation errors.
func Validate(c Contact) error {
	return toViolation(validate.Struct(c))
}

// ValidateUser checks a create-user payload.
func ValidateUser(u NewUser) error {
	return toViolation(validate.Struct(u))
}

func toViolation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.MarkKind(err, shared.KindValidation)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return shared.Violation(fields)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid"
	}
}
