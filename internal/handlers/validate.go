package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/boardsync/apiserver/internal/apperrors"
	"github.com/boardsync/apiserver/types"
	"github.com/go-playground/validator/v10"
)

const (
	passwordMinLength = 6
	passwordMaxLength = 50
)

var validate = newValidator().check

type requestValidator struct {
	v *validator.Validate
}

func newValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register validation %q: %v", tag, err))
		}
	}
	mustRegister("password", validatePassword)
	mustRegister("board_type", validateBoardType)

	return &requestValidator{v: v}
}

// check runs the struct rules and aggregates failures per field.
func (rv *requestValidator) check(dst any) error {
	err := rv.v.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Internal(err)
	}
	fields := make(map[string]apperrors.FieldError, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = apperrors.FieldError{Message: fieldMessage(fe), Value: redact(fe)}
	}
	return apperrors.Validation(fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "uuid":
		return "Must be a valid id"
	case "min":
		return fmt.Sprintf("Must be at least %s characters long", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters long", fe.Param())
	case "eqfield":
		return "Confirm password must match password"
	case "password":
		return fmt.Sprintf("Password must be %d to %d characters and contain lowercase, uppercase, digit and symbol",
			passwordMinLength, passwordMaxLength)
	case "board_type":
		return fmt.Sprintf("Must be one of: %s, %s", types.BoardPublic, types.BoardPrivate)
	default:
		return fmt.Sprintf("Invalid value (failed on '%s' tag)", fe.Tag())
	}
}

// redact keeps secrets out of error payloads.
func redact(fe validator.FieldError) any {
	switch fe.Tag() {
	case "password", "eqfield":
		return nil
	}
	if strings.Contains(fe.Field(), "password") {
		return nil
	}
	return fe.Value()
}

func validatePassword(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if n := len([]rune(value)); n < passwordMinLength || n > passwordMaxLength {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range value {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

func validateBoardType(fl validator.FieldLevel) bool {
	switch types.BoardType(fl.Field().String()) {
	case types.BoardPublic, types.BoardPrivate:
		return true
	default:
		return false
	}
}
