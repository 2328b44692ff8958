// Package validation plugs go-playground/validator into echo and reports the
// first failing field as an apperr.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/hypersenta/serenity/internal/platform/apperr"
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator that names fields by their json tag and understands
// the nonnegative_decimal tag for *decimal.Decimal / decimal.Decimal fields.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on an empty tag name.
	_ = v.RegisterValidation("nonnegative_decimal", func(fl validator.FieldLevel) bool {
		switch d := fl.Field().Interface().(type) {
		case decimal.Decimal:
			return !d.IsNegative()
		case *decimal.Decimal:
			return d == nil || !d.IsNegative()
		}
		return false
	})
	return &Validator{v: v}
}

// Validate runs struct validation on i.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate request: %w", err)
	}
	fe := verrs[0]
	return apperr.Validation(fe.Field(), "%s", describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "nonnegative_decimal":
		return "must not be negative"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
