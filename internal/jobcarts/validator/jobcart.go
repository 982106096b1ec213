package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"eventmarket/pkg/model"

	"github.com/go-playground/validator/v10"
)

const maxIDLength = 64

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	return fmt.Sprintf("validation failed: %d error(s)", len(v))
}

func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, e := range v {
		details[e.Field] = e.Message
	}
	return details
}

type JobCartValidator struct {
	validate *validator.Validate
}

func NewJobCartValidator() *JobCartValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &JobCartValidator{validate: v}
}

// ValidateJobCart checks a cart after sanitization.
func (v *JobCartValidator) ValidateJobCart(cart *model.JobCart) error {
	if err := v.validate.Struct(cart); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			out := make(ValidationErrors, 0, len(validationErrs))
			for _, fe := range validationErrs {
				out = append(out, ValidationError{Field: fe.Field(), Message: message(fe)})
			}
			return out
		}
		return err
	}
	return nil
}

// ValidateClaim checks the identifiers of an accept, decline or upload check.
func (v *JobCartValidator) ValidateClaim(jobCartID, providerID string) error {
	var errs ValidationErrors
	errs = appendIDError(errs, "job_cart_id", jobCartID)
	errs = appendIDError(errs, "provider_id", providerID)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendIDError(errs ValidationErrors, field, value string) ValidationErrors {
	switch {
	case value == "":
		return append(errs, ValidationError{Field: field, Message: "is required"})
	case len(value) > maxIDLength:
		return append(errs, ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxIDLength)})
	}
	return errs
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", err.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(err.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}
