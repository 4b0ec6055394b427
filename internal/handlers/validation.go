package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tcollier/txgate/internal/models"
	pkghttp "github.com/tcollier/txgate/pkg/http"
)

// Global validator instance (reused across all handlers)
var validate = validator.New()

// ValidateRequest validates a request struct. On failure it returns
// invalidParameters carrying one alert per failed field.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		alerts := make([]string, 0, len(ve))
		for _, fieldError := range ve {
			alerts = append(alerts, fmt.Sprintf("%s: %s", fieldError.Field(), formatValidationError(fieldError)))
		}
		return models.ErrInvalidParameters.WithAlerts(alerts...)
	}

	return models.ErrInvalidParameters
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// writeServiceError maps a typed service error onto the wire envelope. The
// error code doubles as the HTTP status. Untyped errors become 500s.
func writeServiceError(w http.ResponseWriter, err error) {
	var typed *models.Error
	if errors.As(err, &typed) {
		pkghttp.WriteError(w, typed.Code, typed.Msg, typed.Alerts...)
		return
	}

	pkghttp.WriteInternalError(w, models.ErrUnknown.Msg)
}
