package server

import (
	"net/http"

	"ledger-reconciliation-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope of every non-file answer
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func success(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func errorResponse(c *gin.Context, status int, code, message, details string) {
	c.JSON(status, Response{
		Success: false,
		Message: message,
		Error:   &ErrorDetail{Code: code, Message: message, Details: details},
	})
}

// StatusFor maps an error to an HTTP status by its category
func StatusFor(err error) int {
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch rerr.Category {
	case errors.CategoryConfiguration, errors.CategoryValidation, errors.CategoryParse:
		return http.StatusBadRequest
	case errors.CategoryFile:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// failure answers with the status and detail of err
func failure(c *gin.Context, err error) {
	_ = c.Error(err)

	status := StatusFor(err)
	detail := &ErrorDetail{Code: "internal_error", Message: err.Error()}
	if rerr, ok := errors.AsReconcilerError(err); ok {
		detail = &ErrorDetail{
			Code:       string(rerr.Code),
			Message:    rerr.Message,
			Suggestion: rerr.Suggestion,
		}
		if rerr.Cause != nil {
			detail.Details = rerr.Cause.Error()
		}
	}
	if status == http.StatusInternalServerError && detail.Code == "internal_error" {
		detail.Message = "An unexpected error occurred"
	}

	c.JSON(status, Response{Success: false, Message: detail.Message, Error: detail})
}
