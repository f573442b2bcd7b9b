// Package response формирует единый JSON-конверт ответов API.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FieldError описывает ошибку одного поля запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Envelope - общий формат ответа: success, status, message и необязательные data/details.
type Envelope struct {
	Success bool         `json:"success"`
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

// Message склеивает текст статуса и сообщение операции: "OK::order fetched".
func Message(status int, msg string) string {
	return http.StatusText(status) + "::" + msg
}

// OK пишет успешный ответ с данными.
func OK(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Envelope{
		Success: true,
		Status:  status,
		Message: Message(status, msg),
		Data:    data,
	})
}

// Fail пишет ответ об ошибке и прерывает цепочку обработчиков.
func Fail(c *gin.Context, status int, msg string, details ...FieldError) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Status:  status,
		Message: Message(status, msg),
		Details: details,
	})
}
