package validation

import (
	"errors"
	"reflect"
	"strings"

	"crm-api/internal/format"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the CRM's custom tags registered:
// cpf, cnpj and br_phone (10 or 11 digits after stripping punctuation).
// Field names in errors use the json tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "cpf", func(fl validator.FieldLevel) bool {
		return ValidateCPF(fl.Field().String())
	})
	mustRegister(v, "cnpj", func(fl validator.FieldLevel) bool {
		return ValidateCNPJ(fl.Field().String())
	})
	mustRegister(v, "br_phone", func(fl validator.FieldLevel) bool {
		n := len(format.Digits(fl.Field().String()))
		return n == 10 || n == 11
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("validation: register " + tag + ": " + err.Error())
	}
}

// FieldErrors flattens validator errors into field -> message.
// Returns nil when err is not a validation error.
func FieldErrors(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "eqfield":
		return "must match " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " characters"
	case "max":
		return "must have at most " + fe.Param() + " characters"
	case "cpf":
		return "invalid CPF"
	case "cnpj":
		return "invalid CNPJ"
	case "br_phone":
		return "invalid phone number"
	case "email":
		return "invalid e-mail"
	}
	return "failed on " + fe.Tag()
}
