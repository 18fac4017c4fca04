// Package response writes the uniform API envelopes.
package response

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/videotube/api/internal/apperr"
	"github.com/videotube/api/internal/logger"
)

const internalMessage = "internal server error"

// Envelope is the success body.
type Envelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

// ErrorEnvelope is the failure body.
type ErrorEnvelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// JSON writes a success envelope. A nil payload is rendered as an empty object.
func JSON(c *gin.Context, status int, data any, message string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Envelope{
		Success:    true,
		StatusCode: status,
		Data:       data,
		Message:    message,
	})
}

// Fail converts err into an error envelope and aborts the handler chain.
// Unclassified errors are logged and hidden behind a generic message; causes never reach the client.
func Fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	message := internalMessage
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}

	log := logger.FromContext(c)
	switch kind {
	case apperr.KindInternal:
		log.Error("request failed", zap.Error(err))
	default:
		log.Debug("request rejected", zap.String("kind", kind.String()), zap.Error(err))
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Success:    false,
		Message:    message,
		StatusCode: status,
	})
}

// BindError translates a gin binding failure into a validation error.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return apperr.Validation(strings.Join(msgs, "; "))
	}
	if errors.Is(err, io.EOF) {
		return apperr.Validation("request body is required")
	}
	return apperr.Validation("malformed request body")
}

func fieldMessage(fe validator.FieldError) string {
	name := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", name)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be no longer than %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
