package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"linkdigest/internal/types"
)

// Validator wraps go-playground/validator to translate struct validation
// failures into structured AppErrors with per-field details.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator. The logger is used for diagnostics
// when validation fails in unexpected ways.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates v against its struct tags. On failure it returns a
// *types.AppError whose Details map field names (lowercased) to the violated
// constraint, e.g. {"url": "required"}.
func (v *Validator) ValidateStruct(val interface{}) error {
	err := v.validate.Struct(val)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: the value was not a struct. Programming
		// error, surface as internal.
		v.logger.Error("validator received non-struct value", "error", err)
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"validation failed",
			err,
		)
	}

	details := make(map[string]any, len(fieldErrs))
	missing := false
	for _, fe := range fieldErrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
		if fe.Tag() == "required" {
			missing = true
		}
	}

	code := types.ErrCodeValidationInvalidField
	message := "invalid field value"
	if missing {
		code = types.ErrCodeValidationMissingField
		message = "missing required field"
	}

	return types.NewAppErrorWithDetails(code, message, err, details)
}
