package api

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Коды ошибок в ответе
const (
	CodeNotFound          = "not_found"
	CodeValidation        = "validation_error"
	CodeInvalidTransition = "invalid_state_transition"
	CodeTimeConflict      = "time_conflict"
	CodeInternal          = "internal_error"
)

type errorResponse struct {
	Error     string             `json:"error"`
	Code      string             `json:"code"`
	Field     string             `json:"field,omitempty"`
	Conflicts []service.Conflict `json:"conflicts,omitempty"`
}

// respondError переводит ошибку сервиса в HTTP-ответ
func (h *handler) respondError(c *gin.Context, err error) {
	var (
		validation *service.ValidationError
		conflict   *service.ConflictError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: CodeValidation, Field: validation.Field})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: CodeValidation})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: CodeNotFound})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: CodeInvalidTransition})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: CodeTimeConflict, Conflicts: conflict.Conflicts})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: CodeTimeConflict})
	default:
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: CodeInternal})
	}
}

// badRequest ошибка разбора параметров или тела запроса
func badRequest(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: CodeValidation, Field: field})
}
