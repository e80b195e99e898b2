// Package respond writes the JSON error envelope shared by handlers and middleware:
// {"error": message, "code": code}, plus missing_questions for incomplete sessions
// and reset_at for exhausted rate limits.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/assessment-platform/assessment-api/internal/assessment"
)

// RequestIDKey is the gin.Context key holding the request id.
const RequestIDKey = "request_id"

// Error aborts the request with the envelope for err. Errors that are not an
// *assessment.Error are logged with the request id and reported as a bare 500.
func Error(c *gin.Context, err error) {
	e, ok := assessment.AsError(err)
	if !ok {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"request_id", c.GetString(RequestIDKey),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
			"code":  assessment.CodeInternal,
		})
		return
	}

	body := gin.H{"error": e.Message, "code": e.Code}
	if e.Kind == assessment.KindIncomplete {
		body["missing_questions"] = e.Missing
	}
	if e.ResetAt != nil {
		body["reset_at"] = e.ResetAt.UTC()
	}
	c.AbortWithStatusJSON(e.Status(), body)
}

// BadRequest reports a body or query string that failed to bind. The message names
// the offending fields as clients send them and never echoes decoder internals.
func BadRequest(c *gin.Context, err error) {
	Error(c, assessment.Validation(assessment.CodeValidation, bindingMessage(err)))
}

func bindingMessage(err error) string {
	var (
		verrs     validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
		syntaxErr *json.SyntaxError
		timeErr   *time.ParseError
	)
	switch {
	case errors.As(err, &verrs):
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return strings.Join(msgs, "; ")
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return fmt.Sprintf("request body must be a JSON %s", typeErr.Type.Kind())
		}
		return fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type.Kind())
	case errors.As(err, &timeErr):
		return "timestamps must use RFC 3339, e.g. 2026-01-02T15:04:05Z"
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return "request body is not valid JSON"
	case errors.Is(err, io.EOF):
		return "request body is empty"
	default:
		return "invalid request"
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "httpurl":
		return field + " must be an absolute http or https URL"
	default:
		return field + " is invalid"
	}
}
