package api

import (
	"net/http"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/gin-gonic/gin"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorData  `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// Error writes err as an envelope. Only the classified message reaches the
// client; the cause is attached to the gin context for the access log.
func Error(c *gin.Context, err error) {
	classified := domain.Classify(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(classified.Kind), Response{
		Success: false,
		Error: &ErrorData{
			Code:    string(classified.Kind),
			Message: classified.Message,
		},
	})
}

func StatusFor(kind domain.Kind) int {
	switch kind.Class() {
	case domain.ClassClientFault:
		return http.StatusBadRequest
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
