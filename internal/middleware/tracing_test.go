package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"itdesk/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("itdesk-test")
	t.Cleanup(func() { observability.Tracer = prev })
	return recorder
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func newTracedApp() *fiber.App {
	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Put("/api/it-requests/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/api/it-requests/status/:status", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/api/rebuild-status-tables", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusInternalServerError)
	})
	return app
}

func TestTracingMiddleware_NamesSpanAfterRoute(t *testing.T) {
	recorder := recordSpans(t)
	app := newTracedApp()

	req := httptest.NewRequest(http.MethodPut, "/api/it-requests/42", nil)
	req.Header.Set(DeviceIDHeader, "WS-0042")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Trace-ID"), 32)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "PUT /api/it-requests/:id", span.Name())

	attrs := spanAttrs(span)
	assert.Equal(t, "/api/it-requests/:id", attrs["http.route"].AsString())
	assert.Equal(t, int64(42), attrs["it_request.id"].AsInt64())
	assert.Equal(t, "WS-0042", attrs["device.id"].AsString())
	assert.Equal(t, int64(200), attrs["http.status_code"].AsInt64())
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracingMiddleware_StatusParamAndServerErrors(t *testing.T) {
	recorder := recordSpans(t)
	app := newTracedApp()

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/it-requests/status/inprogress", nil),
		httptest.NewRequest(http.MethodPost, "/api/rebuild-status-tables", nil),
	} {
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	byStatus := spanAttrs(ended[0])
	assert.Equal(t, "GET /api/it-requests/status/:status", ended[0].Name())
	assert.Equal(t, "inprogress", byStatus["it_request.status"].AsString())
	_, hasID := byStatus["it_request.id"]
	assert.False(t, hasID)

	assert.Equal(t, "POST /api/rebuild-status-tables", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}
