package api

import (
	"github.com/labstack/echo/v4"

	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/logging"
	"github.com/pr-poehali-dev/heated-roof-strips-system/internal/observability"
)

// SetupMiddleware wires the error envelope, per-request identity, tracing,
// and HTTP metrics onto the echo instance. Call before RegisterRoutes.
func SetupMiddleware(e *echo.Echo, log logging.Logger, collector *observability.PanelCollector) {
	e.HTTPErrorHandler = ErrorHandler
	e.Use(RequestContext(log))
	e.Use(TracingMiddleware())
	if collector != nil {
		e.Use(collector.EchoMiddleware())
	}
}

// RequestContext stamps each request with a request ID, echoes it back in the
// response header, and attaches a request-scoped logger to the context.
func RequestContext(log logging.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logging.Noop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, requestID := logging.EnsureRequestID(c.Request().Context())
			ctx, _ = logging.WithRequestLogger(ctx, log.With(
				logging.String("method", c.Request().Method),
				logging.String("path", c.Path()),
			))
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(c)
		}
	}
}

// RegisterRoutes registers the panel API. The websocket hub is optional;
// without one the /ws route is not exposed.
func RegisterRoutes(e *echo.Echo, h *Handler, hub *StreamHub) {
	e.GET("/healthz", h.HandleHealth)

	v1 := e.Group("/api/v1")

	v1.GET("/system", h.HandleGetSystem)
	v1.GET("/system/export", h.HandleExportSystem)
	v1.GET("/summary", h.HandleGetSummary)
	v1.GET("/logs", h.HandleGetLogs)
	v1.GET("/alerts", h.HandleGetAlerts)
	v1.POST("/alerts/:id/ack", h.HandleAcknowledgeAlert)

	v1.POST("/tapes", h.HandleAddTape)
	v1.DELETE("/tapes/:id", h.HandleRemoveTape)
	v1.POST("/tapes/:id/toggle", h.HandleToggleTape)
	v1.PATCH("/tapes/:id", h.HandleUpdateTapeField)

	v1.POST("/tapes/:id/segments", h.HandleAddSegment)
	v1.POST("/tapes/:id/segments/enable-all", h.HandleEnableAllSegments)
	v1.POST("/tapes/:id/segments/disable-all", h.HandleDisableAllSegments)
	v1.DELETE("/tapes/:id/segments/:segmentId", h.HandleRemoveSegment)
	v1.POST("/tapes/:id/segments/:segmentId/toggle", h.HandleToggleSegment)
	v1.PUT("/tapes/:id/segments/:segmentId/power", h.HandleSetSegmentPower)
	v1.PUT("/tapes/:id/segments/:segmentId/target-temp", h.HandleSetSegmentTargetTemp)

	v1.PATCH("/settings", h.HandleApplySettings)

	if hub != nil {
		v1.GET("/ws", hub.Handle)
	}
}
