package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCheckRateLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	tests := []struct {
		name          string
		env           string
		client        *redis.Client
		calls         int
		limit         int
		expectedAllow bool
		expectErr     bool
	}{
		{"Test environment bypass", "test", nil, 5, 1, true, false},
		{"Development environment bypass", "development", nil, 5, 1, true, false},
		{"Production nil client errors", "production", nil, 1, 1, false, true},
		{"Production within limit", "production", rdb, 2, 2, true, false},
		{"Production over limit", "production", rdb, 3, 2, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", tt.env)
			resource := "rebuild-" + tt.name

			var allowed bool
			var err error
			for i := 0; i < tt.calls; i++ {
				allowed, err = CheckRateLimit(ctx, tt.client, resource, "ip:1.2.3.4", tt.limit, time.Minute)
			}
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedAllow, allowed)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr, rdb := newTestRedis(t)

	app := fiber.New()
	app.Post("/rebuild", RateLimit(rdb, 1, time.Minute, "rebuild"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(deviceID string) int {
		req := httptest.NewRequest(http.MethodPost, "/rebuild", nil)
		if deviceID != "" {
			req.Header.Set(DeviceIDHeader, deviceID)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, do("desk-1"))
	assert.Equal(t, http.StatusTooManyRequests, do("desk-1"))
	assert.Equal(t, http.StatusOK, do("desk-2"))
	assert.True(t, mr.Exists("rl:rebuild:device:desk-1"))

	mr.Close()
	assert.Equal(t, http.StatusOK, do("desk-3"), "fail-open when redis is down")
}
