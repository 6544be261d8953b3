package validator

import (
	"errors"
	"fmt"
	"smartpark/pkg/model"

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

type LotValidator struct {
	validate *validator.Validate
}

func NewLotValidator() *LotValidator {
	return &LotValidator{
		validate: validator.New(),
	}
}

func (v *LotValidator) Validate(lot *model.Lot) error {
	if err := v.validate.Struct(lot); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if lot.AvailableSlots > lot.Capacity {
		return ValidationErrors{{
			Field:   "AvailableSlots",
			Message: fmt.Sprintf("available slots (%d) cannot exceed capacity (%d)", lot.AvailableSlots, lot.Capacity),
		}}
	}

	return nil
}

func (v *LotValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "required":
			message = "is required"
		case "min":
			message = fmt.Sprintf("must be at least %s", err.Param())
		case "max":
			message = fmt.Sprintf("must be at most %s", err.Param())
		case "mongodb":
			message = "must be a valid object ID"
		default:
			message = fmt.Sprintf("failed validation: %s", err.Tag())
		}
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
