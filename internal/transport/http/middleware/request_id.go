package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID - заголовок корреляции запроса.
const HeaderRequestID = "X-Request-Id"

const requestIDKey = "request_id"

// RequestID берёт X-Request-Id из запроса или генерирует новый и возвращает его в ответе.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
			c.Request.Header.Set(HeaderRequestID, reqID)
		}
		c.Set(requestIDKey, reqID)
		c.Header(HeaderRequestID, reqID)
		c.Next()
	}
}

// RequestIDFrom возвращает идентификатор запроса, выставленный RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// SecureHeaders запрещает браузеру угадывать тип содержимого.
func SecureHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}
