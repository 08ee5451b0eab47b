package common

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var phonePattern = regexp.MustCompile(`^(0|\+84)[1-9][0-9]{8,9}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the API's custom rules registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("vnphone", func(fl validator.FieldLevel) bool {
			return IsPhoneNumber(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// IsPhoneNumber reports whether s is a Vietnamese mobile number (0xxxxxxxxx or +84xxxxxxxxx).
func IsPhoneNumber(s string) bool {
	return phonePattern.MatchString(strings.TrimSpace(s))
}

// FieldError describes a single failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Validate runs struct tag validation and converts failures into a 400 AppError.
func Validate(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return err
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return NewAppError("VALIDATION_ERROR", "request validation failed", http.StatusBadRequest, err).WithDetails(fields)
}

// ParseUUID parses an identifier from a path or body, mapping failures to a 400 AppError.
func ParseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, NewAppError("VALIDATION_ERROR", field+" must be a valid id", http.StatusBadRequest, err)
	}
	return id, nil
}
