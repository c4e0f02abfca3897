package response

import (
	"errors"
	"net/http"
	"strings"

	"ticketon/internal/shared/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// RespondBindingError translates a gin binding failure into the error
// envelope. Field-level failures become a details array of
// {path, message, code}; anything else is reported as a plain
// validation error.
func RespondBindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		RespondError(c, http.StatusBadRequest, apperrors.CodeValidationError, err.Error(), nil)
		return
	}

	details := make([]ValidationDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ValidationDetail{
			Path:    fieldPath(fe),
			Message: validationMessage(fe),
			Code:    fe.Tag(),
		})
	}
	RespondError(c, http.StatusBadRequest, apperrors.CodeValidationError, "request validation failed", details)
}

// fieldPath strips the top-level struct name off the namespace so the
// path matches the JSON shape the client sent.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "failed validation rule " + fe.Tag()
	}
}
