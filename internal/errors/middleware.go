package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorHandler centralizes AppError-to-response conversion and logs every
// handled failure through the component logger attached to the context.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := Classify(err)

		event := log.Warn()
		if appErr.StatusCode() >= 500 {
			event = log.Error()
		}
		event.Str("kind", string(appErr.Kind)).Str("details", appErr.Details).Msg(appErr.Message)

		if !c.Writer.Written() {
			c.JSON(appErr.StatusCode(), appErr.ToResponse())
		}
	}
}

// Recovery recovers from panics in handlers, logs the stack trace, and
// always returns a generic internal_error body — the trace never reaches
// the client.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, Response{Detail: "internal server error"})
			}
		}()
		c.Next()
	}
}

// HandleError registers err on the Gin context for ErrorHandler to render.
func HandleError(c *gin.Context, err error) {
	c.Error(Classify(err))
}

// AbortWithError aborts the request immediately with the given AppError.
func AbortWithError(c *gin.Context, err *AppError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode(), err.ToResponse())
}
