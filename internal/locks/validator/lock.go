package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"eventmarket/pkg/model"

	"github.com/go-playground/validator/v10"
)

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

// Details renders the errors as a field -> message map for API responses.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, e := range v {
		details[e.Field] = e.Message
	}
	return details
}

type LockValidator struct {
	validate *validator.Validate
}

func NewLockValidator() *LockValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	_ = v.RegisterValidation("resource_type", func(fl validator.FieldLevel) bool {
		return model.ResourceType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("operation", func(fl validator.FieldLevel) bool {
		return model.Operation(fl.Field().String()).Valid()
	})

	return &LockValidator{validate: v}
}

func (v *LockValidator) ValidateAcquire(req *model.AcquireRequest) error {
	return v.validateStruct(req)
}

func (v *LockValidator) ValidateRenew(req *model.RenewRequest) error {
	return v.validateStruct(req)
}

func (v *LockValidator) ValidateForceRelease(req *model.ForceReleaseRequest) error {
	return v.validateStruct(req)
}

func (v *LockValidator) ValidateKey(key model.ResourceKey) error {
	var errs ValidationErrors
	if !key.Type.Valid() {
		errs = append(errs, ValidationError{
			Field:   "resource_type",
			Message: fmt.Sprintf("must be one of: %s", joinTypes()),
		})
	}
	if key.RecordID == "" {
		errs = append(errs, ValidationError{Field: "resource_id", Message: "is required"})
	} else if len(key.RecordID) > 128 {
		errs = append(errs, ValidationError{Field: "resource_id", Message: "must be at most 128 characters"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *LockValidator) validateStruct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	out := make(ValidationErrors, 0, len(errs))
	for _, err := range errs {
		out = append(out, ValidationError{Field: err.Field(), Message: message(err)})
	}
	return out
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", err.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", err.Param())
	case "uuid":
		return "must be a valid UUID"
	case "resource_type":
		return fmt.Sprintf("must be one of: %s", joinTypes())
	case "operation":
		ops := make([]string, len(model.Operations))
		for i, op := range model.Operations {
			ops[i] = string(op)
		}
		return fmt.Sprintf("must be one of: %s", strings.Join(ops, ", "))
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}

func joinTypes() string {
	types := make([]string, len(model.ResourceTypes))
	for i, t := range model.ResourceTypes {
		types[i] = string(t)
	}
	return strings.Join(types, ", ")
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
