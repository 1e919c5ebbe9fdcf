package middleware

import (
	"strconv"

	"itdesk/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware opens a server span per HTTP request, continuing any W3C trace
// context sent by the client. Once routing is done the span is renamed after the
// route template and tagged with the IT request id or status from the path.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))

		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.target", c.OriginalURL()),
				attribute.String("net.peer.ip", c.IP()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Set("X-Trace-ID", traceID)
		if deviceID := c.Get(DeviceIDHeader); deviceID != "" {
			span.SetAttributes(attribute.String("device.id", deviceID))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
			span.SetName(c.Method() + " " + route.Path)
			span.SetAttributes(attribute.String("http.route", route.Path))
		}
		if raw := c.Params("id"); raw != "" {
			if id, convErr := strconv.ParseUint(raw, 10, 64); convErr == nil {
				span.SetAttributes(attribute.Int64("it_request.id", int64(id)))
			}
		}
		if status := c.Params("status"); status != "" {
			span.SetAttributes(attribute.String("it_request.status", status))
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			span.SetAttributes(attribute.String("http.request_id", rid))
		}

		code := c.Response().StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", code))
		if err != nil {
			span.RecordError(err)
		}
		if err != nil || code >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, strconv.Itoa(code))
		}
		return err
	}
}
