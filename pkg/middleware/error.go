package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"ticketing-commerce/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Error renders the last handler error as {"error": {code, message, details}}.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		be := toBaseError(last.Err)
		code := be.Code.HTTPStatus()

		if code >= 500 {
			span := trace.SpanFromContext(c.Request.Context())
			zap.L().Error("request failed",
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Int("status", code),
				zap.Error(last.Err),
			)
		}

		// causes stay in the logs, clients get the message only
		be.Err = nil
		c.JSON(code, be.JSON())
	}
}

func toBaseError(err error) errutil.BaseError {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]errutil.Detail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, errutil.Detail{Field: fe.Field(), Message: fe.Tag()})
		}
		return errutil.BaseError{Code: errutil.StatusValidationFailed, Message: "invalid request", Details: details}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errutil.BaseError{Code: errutil.StatusBadRequest, Message: "malformed request body"}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errutil.BaseError{Code: errutil.StatusTimeout, Message: "request timed out"}
	}

	return errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
}
