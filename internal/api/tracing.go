package api

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/logging"
)

const tracerName = "github.com/pr-poehali-dev/heated-roof-strips-system/internal/api"

// TracingMiddleware opens a server span for every request and enriches it
// with route and outcome attributes. Under the noop provider the spans are
// non-recording, so the middleware can stay wired unconditionally.
func TracingMiddleware() echo.MiddlewareFunc {
	tracer := otel.Tracer(tracerName)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			ctx, span := tracer.Start(req.Context(),
				fmt.Sprintf("HTTP %s %s", req.Method, route),
				trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			attrs := []attribute.KeyValue{
				attribute.String("http.method", req.Method),
				attribute.String("http.route", route),
			}
			if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
				attrs = append(attrs, attribute.String("request_id", reqID))
			}
			span.SetAttributes(attrs...)

			c.SetRequest(req.WithContext(ctx))
			err := next(c)
			if err != nil {
				span.RecordError(err)
				return err
			}
			span.SetAttributes(attribute.Int("http.status_code", c.Response().Status))
			return nil
		}
	}
}
