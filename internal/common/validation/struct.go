package validation

import (
	"errors"
	"reflect"
	"strings"

	apperrors "induction-portal/internal/common/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so field errors line up with the form keys
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Struct runs the `validate` tags on v and converts failures to field errors.
func Struct(v interface{}) []apperrors.FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apperrors.FieldError{{Field: "", Code: apperrors.FieldInvalidFormat, Message: err.Error()}}
	}

	out := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, toFieldError(fe))
	}
	return out
}

func toFieldError(fe validator.FieldError) apperrors.FieldError {
	switch fe.Tag() {
	case "required", "notblank":
		return apperrors.FieldError{
			Field:   fe.Field(),
			Code:    apperrors.FieldMissingRequired,
			Message: "This field is required",
		}
	case "email":
		return apperrors.FieldError{
			Field:   fe.Field(),
			Code:    apperrors.FieldInvalidFormat,
			Message: "Please enter a valid email address",
		}
	default:
		return apperrors.FieldError{
			Field:   fe.Field(),
			Code:    apperrors.FieldInvalidFormat,
			Message: "Invalid value",
		}
	}
}
