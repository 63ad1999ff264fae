package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "mediconnect-backend/pkg/errors"
)

// Response represents standard API response envelope
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Meta    Meta         `json:"meta"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta contains response metadata
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta(c),
	})
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    errorCode,
			Message: errorMessage,
		},
		Meta: meta(c),
	})
}

// FromError renders any error through its AppError code and status.
// Internal causes are never echoed to the client.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	msg := appErr.Message
	if status >= http.StatusInternalServerError && appErr.Code == apperrors.ErrCodeInternal {
		msg = "Internal server error"
	}
	Error(c, status, string(appErr.Code), msg)
}

// ValidationError sends a validation error response (400)
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, string(apperrors.ErrCodeValidation), message)
}

// Unauthorized sends unauthorized error (401)
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, string(apperrors.ErrCodeUnauthorized), message)
}

// Forbidden sends forbidden error (403)
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, string(apperrors.ErrCodeForbidden), message)
}

// NotFound sends not found error (404)
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, string(apperrors.ErrCodeNotFound), message)
}

// InternalError sends internal server error (500)
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), message)
}

func meta(c *gin.Context) Meta {
	return Meta{
		Timestamp: time.Now().UTC(),
		RequestID: c.GetString("request_id"),
	}
}
