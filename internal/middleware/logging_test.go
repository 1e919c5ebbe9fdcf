package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextMiddleware_PropagatesDeviceAndRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-42")
		return c.Next()
	})
	app.Use(ContextMiddleware())

	var gotDevice, gotRequest any
	app.Get("/", func(c *fiber.Ctx) error {
		gotDevice = c.UserContext().Value(DeviceIDKey)
		gotRequest = c.UserContext().Value(RequestIDKey)
		return c.SendStatus(fiber.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DeviceIDHeader, "  desk-7  ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "desk-7", gotDevice)
	assert.Equal(t, "req-42", gotRequest)
}

func TestCtxHandler_AddsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&ctxHandler{slog.NewTextHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := context.WithValue(context.Background(), DeviceIDKey, "desk-9")
	ctx = context.WithValue(ctx, RequestIDKey, "rid-1")
	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "device_id=desk-9")
	assert.Contains(t, out, "request_id=rid-1")
	assert.Contains(t, out, "component=test")
}
